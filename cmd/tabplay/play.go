package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cbegin/tabplay-go"
)

var (
	startTick     float64
	withMetronome bool
	ternary       bool
)

var playCmd = &cobra.Command{
	Use:   "play <file|->",
	Short: "Play tablature with a terminal monitor",
	Long: `Play a tablature file through the default audio device and follow the
playhead in a terminal monitor.

Keys:
  space     stop / resume from where playback stopped
  ←/→       seek one measure
  0         back to the start
  +/-       tempo
  [/]       speed
  m         metronome on/off
  b         binary / ternary meter
  q         quit
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().Float64Var(&startTick, "start", 0, "tick to start playback at")
	playCmd.Flags().BoolVarP(&withMetronome, "metronome", "m", false, "enable the metronome")
	playCmd.Flags().BoolVar(&ternary, "ternary", false, "metronome accents every third beat")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	text, err := readTablature(cmd, args[0])
	if err != nil {
		return err
	}

	// The monitor owns the terminal, so logs go to a file when asked for
	// and nowhere otherwise.
	log := newLogger()
	log.SetOutput(io.Discard)
	if verbose {
		path := filepath.Join(os.TempDir(), "tabplay.log")
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		defer f.Close()
		log.SetOutput(f)
		fmt.Fprintf(cmd.ErrOrStderr(), "logging to %s\n", path)
	}

	meter := newLevelMeter()
	eng, err := newEngine(cmd, log, tabplay.WithSampleTap(meter.Tap))
	if err != nil {
		return err
	}
	defer eng.Close()
	eng.Load(text)
	if cmd.Flags().Changed("metronome") {
		eng.SetMetronome(withMetronome)
	}
	if ternary {
		if err := eng.SetMeter(tabplay.MeterTernary); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newMonitor(ctx, eng, meter, startTick)
	p := tea.NewProgram(m, tea.WithAltScreen())
	eng.OnTick(func(t tabplay.Tick) { p.Send(tickMsg(t)) })
	eng.OnEnded(func() { p.Send(endedMsg{}) })

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		<-c
		cancel()
		p.Send(tea.Quit())
	}()

	final, err := p.Run()
	if err != nil {
		return errors.Wrap(err, "run monitor")
	}
	if fm, ok := final.(*monitor); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
