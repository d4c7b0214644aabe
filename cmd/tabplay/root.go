package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cbegin/tabplay-go"
	"github.com/cbegin/tabplay-go/internal/config"
)

var (
	configPath string
	verbose    bool

	sampleRate int
	tempo      float64
	speed      float64
	samplesDir string
	soundFont  string
	tuningFile string
)

var rootCmd = &cobra.Command{
	Use:   "tabplay",
	Short: "Play and export tick-based tablature",
	Long: `tabplay reads tablature text where each line is a time delta followed by a
string position, a command (TXT, PAGE) or a silence marker, and plays it through
the default audio device or renders it to WAV and MP3.

Example:
  tabplay play song.tab --tempo 96
  tabplay export song.tab --wav song.wav --mp3 song.mp3
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/tabplay/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log scheduling and sample loading")
	pf.IntVar(&sampleRate, "sample-rate", 0, "output sample rate in Hz")
	pf.Float64VarP(&tempo, "tempo", "t", 0, "tempo in quarter notes per minute")
	pf.Float64Var(&speed, "speed", 0, "playback speed multiplier")
	pf.StringVar(&samplesDir, "samples", "", "directory of note samples (C4.wav, Bb3.mp3, ...)")
	pf.StringVar(&soundFont, "soundfont", "", "SoundFont used to render notes")
	pf.StringVar(&tuningFile, "tuning", "", "YAML file mapping string positions to notes")
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.TimeOnly})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// loadConfig reads the config file and applies any flags given on the
// command line on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("sample-rate") {
		conf.SampleRate = sampleRate
	}
	if flags.Changed("tempo") {
		conf.Tempo = tempo
	}
	if flags.Changed("speed") {
		conf.Speed = speed
	}
	if flags.Changed("samples") {
		conf.SamplesDir = samplesDir
	}
	if flags.Changed("soundfont") {
		conf.SoundFont = soundFont
	}
	if flags.Changed("tuning") {
		conf.TuningFile = tuningFile
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func newEngine(cmd *cobra.Command, log logrus.FieldLogger, opts ...tabplay.EngineOption) (*tabplay.Engine, error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return tabplay.NewEngine(append([]tabplay.EngineOption{tabplay.WithConfig(conf), tabplay.WithLogger(log)}, opts...)...)
}

// readInput returns the tablature text from the named file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return string(data), nil
}

// readTablature is readInput for commands that need at least one line to act on.
func readTablature(cmd *cobra.Command, path string) (string, error) {
	text, err := readInput(cmd, path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.Errorf("%s: no tablature", path)
	}
	return text, nil
}
