package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cbegin/tabplay-go/internal/export"
)

var (
	wavPath string
	mp3Path string
)

var exportCmd = &cobra.Command{
	Use:   "export <file|->",
	Short: "Render tablature to WAV and/or MP3",
	Long: `Render a tablature file offline at the configured tempo and write it as
16-bit PCM WAV, 320 kbps MP3, or both. Speed does not affect exports. Notes
whose sample cannot be loaded are left out of the render.

Example:
  tabplay export song.tab --wav song.wav --mp3 song.mp3
`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&wavPath, "wav", "", "write a WAV file")
	exportCmd.Flags().StringVar(&mp3Path, "mp3", "", "write an MP3 file")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if wavPath == "" && mp3Path == "" {
		return errors.New("nothing to do: pass --wav and/or --mp3")
	}
	log := newLogger()
	text, err := readTablature(cmd, args[0])
	if err != nil {
		return err
	}
	eng, err := newEngine(cmd, log)
	if err != nil {
		return err
	}
	defer eng.Close()
	eng.Load(text)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	buf, stats, err := eng.Render(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"notes":    stats.Rendered,
		"dropped":  stats.Dropped,
		"duration": buf.Duration().Round(time.Millisecond),
	}).Info("rendered")

	if wavPath != "" {
		data, err := export.WAV(buf)
		if err != nil {
			return err
		}
		if err := os.WriteFile(wavPath, data, 0644); err != nil {
			return errors.Wrapf(err, "write %s", wavPath)
		}
		log.WithField("path", wavPath).Info("wrote wav")
	}
	if mp3Path != "" {
		data, err := export.MP3(buf)
		if err != nil {
			return err
		}
		if err := os.WriteFile(mp3Path, data, 0644); err != nil {
			return errors.Wrapf(err, "write %s", mp3Path)
		}
		log.WithField("path", mp3Path).Info("wrote mp3")
	}
	return nil
}
