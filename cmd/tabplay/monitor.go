package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/tabplay-go"
	"github.com/cbegin/tabplay-go/internal/tab"
)

const (
	tempoStep   = 5
	speedStep   = 0.1
	minSpeed    = 0.1
	barWidth    = 40
	upcomingMax = 6
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	fillStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)

// levelMeter tracks the RMS of the live output between redraws.
type levelMeter struct {
	mu  sync.Mutex
	sum float64
	n   int
}

func newLevelMeter() *levelMeter {
	return &levelMeter{}
}

// Tap is called from the audio thread. Keep it minimal: just accumulate.
func (l *levelMeter) Tap(samples []float32) {
	l.mu.Lock()
	for i := 0; i+1 < len(samples); i += 2 {
		mono := float64(samples[i]+samples[i+1]) * 0.5
		l.sum += mono * mono
		l.n++
	}
	l.mu.Unlock()
}

// Level returns the RMS since the previous call.
func (l *levelMeter) Level() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == 0 {
		return 0
	}
	rms := math.Sqrt(l.sum / float64(l.n))
	l.sum, l.n = 0, 0
	return rms
}

type tickMsg tabplay.Tick

type endedMsg struct{}

type startedMsg struct {
	err error
}

type monitor struct {
	ctx   context.Context
	eng   *tabplay.Engine
	meter *levelMeter

	events  []tabplay.Event
	notes   []tabplay.Event
	last    tabplay.Tick
	tick    tabplay.Tick
	playing bool
	level   float64
	message string
	err     error
	width   int
}

func newMonitor(ctx context.Context, eng *tabplay.Engine, meter *levelMeter, start tabplay.Tick) *monitor {
	events := eng.Events()
	return &monitor{
		ctx:    ctx,
		eng:    eng,
		meter:  meter,
		events: events,
		notes:  tab.Notes(events),
		last:   tab.LastTick(events),
		tick:   start,
	}
}

func (m *monitor) Init() tea.Cmd {
	return m.start(m.tick)
}

// start plays from tick off the UI goroutine, since opening the audio
// device and loading samples can take a while.
func (m *monitor) start(tick tabplay.Tick) tea.Cmd {
	m.playing = true
	m.tick = tick
	return func() tea.Msg {
		return startedMsg{err: m.eng.Play(m.ctx, tick)}
	}
}

func (m *monitor) stop() {
	m.eng.Stop()
	m.playing = false
	m.tick = m.eng.CurrentTick()
}

func (m *monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case startedMsg:
		if msg.err != nil {
			m.playing = false
			m.err = msg.err
			m.message = msg.err.Error()
		}
		return m, nil

	case tickMsg:
		m.tick = tabplay.Tick(msg)
		if m.meter != nil {
			m.level = m.meter.Level()
		}
		return m, nil

	case endedMsg:
		m.playing = false
		m.tick = 0
		m.level = 0
		m.message = "finished"
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.eng.Stop()
		return m, tea.Quit

	case " ":
		if m.playing {
			m.stop()
			return m, nil
		}
		m.err = nil
		return m, m.start(m.tick)

	case "0", "home":
		return m.seek(0)

	case "left", "h":
		return m.seek(m.tick - m.measureTicks())

	case "right", "l":
		return m.seek(m.tick + m.measureTicks())

	case "+", "=":
		m.report(m.eng.SetTempo(m.eng.Tempo() + tempoStep))

	case "-", "_":
		m.report(m.eng.SetTempo(m.eng.Tempo() - tempoStep))

	case "]":
		m.report(m.eng.SetSpeed(roundSpeed(m.eng.Speed() + speedStep)))

	case "[":
		m.report(m.eng.SetSpeed(math.Max(minSpeed, roundSpeed(m.eng.Speed()-speedStep))))

	case "m":
		m.eng.SetMetronome(!m.eng.Metronome())

	case "b":
		next := tabplay.MeterTernary
		if m.eng.Meter() == tabplay.MeterTernary {
			next = tabplay.MeterBinary
		}
		m.report(m.eng.SetMeter(next))
	}
	return m, nil
}

func (m *monitor) seek(tick tabplay.Tick) (tea.Model, tea.Cmd) {
	tick = math.Max(0, tick)
	if m.last > 0 {
		tick = math.Min(tick, m.last)
	}
	if !m.playing {
		m.tick = tick
		return m, nil
	}
	m.eng.Stop()
	return m, m.start(tick)
}

func (m *monitor) report(err error) {
	if err != nil {
		m.message = err.Error()
	}
}

func (m *monitor) measureTicks() tabplay.Tick {
	return tabplay.Tick(m.eng.Meter()) * tab.TicksPerQuarter
}

func roundSpeed(v float64) float64 {
	return math.Round(v*10) / 10
}

func (m *monitor) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("tabplay") + "\n\n")

	status := stoppedStyle.Render("■ stopped")
	if m.playing {
		status = playingStyle.Render("▶ playing")
	}
	beats := int(m.tick / tab.TicksPerQuarter)
	meter := int(m.eng.Meter())
	b.WriteString(fmt.Sprintf("%s   measure %d beat %d   tick %.0f / %.0f\n",
		status, beats/meter+1, beats%meter+1, m.tick, m.last))
	b.WriteString(progressBar(m.tick, m.last, barWidth) + "\n\n")

	metronome := "off"
	if m.eng.Metronome() {
		metronome = "on"
	}
	b.WriteString(fmt.Sprintf("tempo %.0f bpm   speed ×%.1f   metronome %s (%d/4)\n",
		m.eng.Tempo(), m.eng.Speed(), metronome, meter))
	b.WriteString("level " + progressBar(m.level, 0.5, barWidth/2) + "\n\n")

	if caption := m.caption(); caption != "" {
		b.WriteString(currentStyle.Render(caption) + "\n")
	}
	b.WriteString(m.upcoming() + "\n")

	if m.message != "" {
		style := dimStyle
		if m.err != nil {
			style = errorStyle
		}
		b.WriteString(style.Render(m.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("space: stop/resume • ←/→: measure • 0: start • +/-: tempo • [/]: speed • m: metronome • b: meter • q: quit"))
	return b.String()
}

// caption is the most recent text command at or before the playhead.
func (m *monitor) caption() string {
	var text string
	for _, ev := range m.events {
		if ev.Tick > m.tick {
			break
		}
		if ev.Kind == tab.KindText {
			text = ev.Message
		}
	}
	return text
}

func (m *monitor) upcoming() string {
	var parts []string
	for _, ev := range m.notes {
		if ev.Tick+tab.TicksPerEighth < m.tick {
			continue
		}
		label := fmt.Sprintf("%s%s", ev.StringID, ev.Fingering)
		if ev.Tick <= m.tick {
			parts = append(parts, currentStyle.Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
		if len(parts) == upcomingMax {
			break
		}
	}
	return strings.Join(parts, "  ")
}

func progressBar(v, full float64, width int) string {
	filled := 0
	if full > 0 {
		filled = int(math.Round(math.Min(1, math.Max(0, v/full)) * float64(width)))
	}
	return fillStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
}
