// Package tabplay plays and exports tablature written in the tick-based
// text notation parsed by internal/tab.
package tabplay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/config"
	"github.com/cbegin/tabplay-go/internal/samples"
	"github.com/cbegin/tabplay-go/internal/scheduler"
	"github.com/cbegin/tabplay-go/internal/tab"
	"github.com/cbegin/tabplay-go/internal/tuning"
)

type (
	Event = tab.Event
	Tick  = tab.Tick
	Meter = scheduler.Meter
)

const (
	MeterBinary  = scheduler.MeterBinary
	MeterTernary = scheduler.MeterTernary
)

// PlaybackEvent carries position and end-of-playback notifications from Watch().
type PlaybackEvent struct {
	Kind int // EventPosition or EventPlaybackEnded
	Tick Tick
}

const (
	EventPosition int = iota
	EventPlaybackEnded
)

type EngineOption func(*engineConfig)

type engineConfig struct {
	conf       *config.Config
	sampleRate int
	bank       samples.Bank
	tuning     tuning.Tuning
	log        logrus.FieldLogger
	sampleTap  func([]float32)
	clock      audio.Clock
	bufferSize time.Duration
}

func WithConfig(c *config.Config) EngineOption {
	return func(cfg *engineConfig) {
		cfg.conf = c
	}
}

func WithSampleRate(rate int) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleRate = rate
	}
}

// WithBank replaces the configured sample source.
func WithBank(bank samples.Bank) EngineOption {
	return func(cfg *engineConfig) {
		cfg.bank = bank
	}
}

func WithTuning(t tuning.Tuning) EngineOption {
	return func(cfg *engineConfig) {
		cfg.tuning = t
	}
}

func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(cfg *engineConfig) {
		cfg.log = log
	}
}

// WithSampleTap installs a callback invoked with each rendered stereo block of
// the live output. The callback runs on the audio thread; keep work brief and
// non-blocking.
func WithSampleTap(tap func([]float32)) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleTap = tap
	}
}

// WithClock drives playback from clock instead of the default audio device.
func WithClock(clock audio.Clock) EngineOption {
	return func(cfg *engineConfig) {
		cfg.clock = clock
	}
}

func WithBufferSize(d time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		cfg.bufferSize = d
	}
}

type Engine struct {
	log    logrus.FieldLogger
	cache  *samples.Cache
	sched  *scheduler.Scheduler
	output *audio.Output

	// playMu orders session starts against end-of-session signalling.
	playMu sync.Mutex

	mu      sync.Mutex
	events  []Event
	onTick  func(Tick)
	onEnded func()
	done    chan struct{}

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	conf := config.Default()
	if cfg.conf != nil {
		c := *cfg.conf
		conf = &c
	}
	if cfg.sampleRate != 0 {
		conf.SampleRate = cfg.sampleRate
	}
	if conf.SampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	log := cfg.log
	if log == nil {
		log = logrus.StandardLogger()
	}

	t := cfg.tuning
	if t == nil {
		t = tuning.Default()
		if conf.TuningFile != "" {
			loaded, err := tuning.Load(conf.TuningFile)
			if err != nil {
				return nil, err
			}
			t = loaded
		}
	}

	bank := cfg.bank
	if bank == nil {
		var err error
		if bank, err = bankFromConfig(conf); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		log:   log.WithField("component", "engine"),
		cache: samples.NewCache(bank, conf.SampleRate, log),
	}
	clock := cfg.clock
	if clock == nil {
		var mixerOpts []audio.MixerOption
		if cfg.sampleTap != nil {
			mixerOpts = append(mixerOpts, audio.WithSampleTap(cfg.sampleTap))
		}
		e.output = audio.NewOutput(audio.NewMixer(conf.SampleRate, mixerOpts...), cfg.bufferSize)
		clock = e.output
	}

	opt := scheduler.DefaultOptions()
	opt.LookAhead = conf.Lookahead.Seconds()
	opt.Interval = conf.Interval
	e.sched = scheduler.New(clock, e.cache, log, opt)
	e.sched.OnTick(e.handleTick)
	e.sched.OnEnded(e.handleEnded)

	if err := e.sched.SetTuning(context.Background(), t); err != nil {
		return nil, err
	}
	if err := e.sched.SetTempo(conf.Tempo); err != nil {
		return nil, err
	}
	if err := e.sched.SetSpeed(conf.Speed); err != nil {
		return nil, err
	}
	if err := e.sched.SetMeter(Meter(conf.Meter)); err != nil {
		return nil, err
	}
	e.sched.SetMetronome(conf.Metronome)
	return e, nil
}

func bankFromConfig(conf *config.Config) (samples.Bank, error) {
	switch {
	case conf.SoundFont != "":
		return samples.LoadSoundFont(conf.SoundFont, conf.SampleRate, conf.Program)
	case conf.SamplesDir != "":
		return samples.NewDirBank(conf.SamplesDir, conf.SampleRate), nil
	default:
		return samples.SynthBank{SampleRate: conf.SampleRate}, nil
	}
}

// Parse converts tablature text into a timeline without loading it.
func Parse(text string) []Event {
	return tab.Parse(text)
}

// Load parses text and replaces the engine's timeline. Any running playback
// stops and the position returns to the start.
func (e *Engine) Load(text string) []Event {
	events := tab.Parse(text)
	e.mu.Lock()
	e.events = events
	e.mu.Unlock()
	e.sched.SetEvents(events)
	e.signalDone()
	return events
}

func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

// Play starts playback at tick, replacing any session in progress.
func (e *Engine) Play(ctx context.Context, tick Tick) error {
	e.playMu.Lock()
	defer e.playMu.Unlock()
	e.sched.Stop()
	e.mu.Lock()
	if e.done != nil {
		close(e.done)
	}
	e.done = make(chan struct{})
	e.mu.Unlock()
	if err := e.sched.Play(ctx, tick); err != nil {
		e.signalDone()
		return err
	}
	return nil
}

// Stop halts playback and remembers where it stopped.
func (e *Engine) Stop() {
	playing := e.sched.Playing()
	e.sched.Stop()
	if playing {
		e.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Tick: e.sched.CurrentTick()})
	}
	e.signalDone()
}

func (e *Engine) Playing() bool { return e.sched.Playing() }

func (e *Engine) CurrentTick() Tick { return e.sched.CurrentTick() }

func (e *Engine) SetTempo(bpm float64) error { return e.sched.SetTempo(bpm) }

func (e *Engine) Tempo() float64 { return e.sched.Tempo() }

func (e *Engine) SetSpeed(multiplier float64) error { return e.sched.SetSpeed(multiplier) }

func (e *Engine) Speed() float64 { return e.sched.Speed() }

func (e *Engine) SetMetronome(enabled bool) { e.sched.SetMetronome(enabled) }

func (e *Engine) Metronome() bool { return e.sched.Metronome() }

func (e *Engine) SetMeter(m Meter) error { return e.sched.SetMeter(m) }

func (e *Engine) Meter() Meter { return e.sched.Meter() }

// SetTuning swaps the position table and preloads its samples. Playback
// picks the new table up on the next scheduled note.
func (e *Engine) SetTuning(ctx context.Context, t tuning.Tuning) error {
	return e.sched.SetTuning(ctx, t)
}

func (e *Engine) Tuning() tuning.Tuning { return e.sched.Tuning() }

// ReloadSamples forgets every cached sample, failures included, and
// resolves the current tuning again.
func (e *Engine) ReloadSamples(ctx context.Context) error {
	e.cache.Invalidate()
	return e.cache.Prepare(ctx, e.sched.Tuning().NoteNames())
}

// OnTick registers the position callback, called roughly every 16ms while
// playing. It runs on a scheduler goroutine.
func (e *Engine) OnTick(fn func(Tick)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// OnEnded registers the callback fired once when playback runs past the
// last note. It is not called for Stop.
func (e *Engine) OnEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

func (e *Engine) handleTick(tick Tick) {
	e.mu.Lock()
	fn := e.onTick
	e.mu.Unlock()
	if fn != nil {
		fn(tick)
	}
	e.sendEvent(PlaybackEvent{Kind: EventPosition, Tick: tick})
}

func (e *Engine) handleEnded() {
	e.mu.Lock()
	fn := e.onEnded
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
	e.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	// A session that ends while Play is replacing it must not release
	// waiters on its successor.
	e.playMu.Lock()
	defer e.playMu.Unlock()
	if !e.sched.Playing() {
		e.signalDone()
	}
}

func (e *Engine) sendEvent(ev PlaybackEvent) {
	e.eventChMu.Lock()
	ch := e.eventCh
	e.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (e *Engine) signalDone() {
	e.mu.Lock()
	done := e.done
	e.done = nil
	e.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Wait blocks until the current playback ends or is stopped.
// Wait returns immediately if no playback is active.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events:
//   - EventPosition: the playhead moved (roughly every 16ms)
//   - EventPlaybackEnded: playback ran out or was stopped
//
// The channel is buffered (cap 8) and events are dropped when it is full.
// Only the most recent Watch() channel receives events.
func (e *Engine) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	e.eventChMu.Lock()
	e.eventCh = ch
	e.eventChMu.Unlock()
	return ch
}

// PlaybackPosition returns the output position of the audio device, i.e.
// what the listener hears right now. Returns 0 with a custom clock.
func (e *Engine) PlaybackPosition() time.Duration {
	if e.output == nil {
		return 0
	}
	return e.output.Position()
}

func (e *Engine) Close() error {
	e.Stop()
	if e.output == nil {
		return nil
	}
	return e.output.Close()
}
