// Package scheduler drives live playback of a tablature timeline against an
// audio clock using look-ahead scheduling.
package scheduler

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/samples"
	"github.com/cbegin/tabplay-go/internal/tab"
	"github.com/cbegin/tabplay-go/internal/tuning"
)

var (
	ErrNoClock      = errors.New("no audio clock")
	ErrUnknownMeter = errors.New("unknown meter")
	ErrInvalidTempo = errors.New("tempo must be positive")
	ErrInvalidSpeed = errors.New("speed multiplier must be positive")
)

// Meter is the number of beats per measure.
type Meter int

const (
	MeterBinary  Meter = 4
	MeterTernary Meter = 3
)

type Options struct {
	// LookAhead is how far past the clock each pass schedules, in seconds.
	LookAhead float64
	// Interval is the period of the scheduling pass.
	Interval time.Duration
	// SafetyOffset places the start tick slightly in the future so nothing
	// is scheduled in the past.
	SafetyOffset float64
	// BackTolerance lets a late pass still click a beat this many seconds old.
	BackTolerance float64
	// TrailingMargin is the silence after the last note before playback ends.
	TrailingMargin float64
	// ReportInterval is the period of the position callback.
	ReportInterval time.Duration
	NoteGain       float64
	ClickGain      float64
}

func DefaultOptions() Options {
	return Options{
		LookAhead:      0.4,
		Interval:       100 * time.Millisecond,
		SafetyOffset:   0.1,
		BackTolerance:  0.05,
		TrailingMargin: 1.0,
		ReportInterval: 16 * time.Millisecond,
		NoteGain:       0.8,
		ClickGain:      0.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LookAhead <= 0 {
		o.LookAhead = d.LookAhead
	}
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.SafetyOffset < 0 {
		o.SafetyOffset = d.SafetyOffset
	}
	if o.BackTolerance < 0 {
		o.BackTolerance = d.BackTolerance
	}
	if o.TrailingMargin < 0 {
		o.TrailingMargin = d.TrailingMargin
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = d.ReportInterval
	}
	if o.NoteGain <= 0 {
		o.NoteGain = d.NoteGain
	}
	if o.ClickGain <= 0 {
		o.ClickGain = d.ClickGain
	}
	return o
}

// session is one Play..Stop span. The scheduler replaces the pointer on
// every Play and clears it on Stop; timer callbacks compare it to detect
// that they belong to a finished session.
type session struct {
	origin   float64
	spt      float64
	start    tab.Tick
	cursor   int
	beat     int
	nextBeat float64
	done     chan struct{}
}

func (s *session) timeOf(tick tab.Tick) float64 { return s.origin + tick*s.spt }

func (s *session) tickAt(t float64) tab.Tick { return (t - s.origin) / s.spt }

type Scheduler struct {
	clock audio.Clock
	cache *samples.Cache
	log   logrus.FieldLogger
	opts  Options

	clicks [2]*audio.Buffer

	mu        sync.Mutex
	notes     []tab.Event
	tuning    tuning.Tuning
	tempo     float64
	speed     float64
	metronome bool
	meter     Meter
	onTick    func(tab.Tick)
	onEnded   func()
	sess      *session
	position  tab.Tick
}

func New(clock audio.Clock, cache *samples.Cache, log logrus.FieldLogger, opts Options) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		clock:  clock,
		cache:  cache,
		log:    log.WithField("component", "scheduler"),
		opts:   opts.withDefaults(),
		clicks: [2]*audio.Buffer{audio.Click(false, cache.SampleRate()), audio.Click(true, cache.SampleRate())},
		tuning: tuning.Default(),
		tempo:  120,
		speed:  1,
		meter:  MeterBinary,
	}
}

// SetEvents replaces the timeline. Only notes are kept. A running session is
// stopped, since its cursor indexes the old timeline.
func (s *Scheduler) SetEvents(events []tab.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.notes = tab.Notes(events)
	s.position = 0
}

// SetTuning switches the tuning and resolves any note names it introduces.
func (s *Scheduler) SetTuning(ctx context.Context, t tuning.Tuning) error {
	s.mu.Lock()
	s.tuning = t
	s.mu.Unlock()
	return s.cache.Prepare(ctx, t.NoteNames())
}

func (s *Scheduler) Tuning() tuning.Tuning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuning
}

// Play starts playback at tick start, stopping any current session first.
// It blocks until the clock is running and the tuning's samples have
// settled; individual sample failures fall back to a synthesized tone.
func (s *Scheduler) Play(ctx context.Context, start tab.Tick) error {
	s.Stop()
	if s.clock == nil {
		return ErrNoClock
	}
	if err := s.clock.Resume(ctx); err != nil {
		return errors.Wrap(err, "resume audio clock")
	}
	s.mu.Lock()
	names := s.tuning.NoteNames()
	s.mu.Unlock()
	if err := s.cache.Prepare(ctx, names); err != nil {
		return errors.Wrap(err, "prepare samples")
	}

	if start < 0 {
		start = 0
	}
	s.mu.Lock()
	s.stopLocked()
	sess := &session{
		spt:   s.secondsPerTickLocked(),
		start: start,
		done:  make(chan struct{}),
	}
	sess.origin = s.clock.Now() + s.opts.SafetyOffset - start*sess.spt
	sess.cursor = sort.Search(len(s.notes), func(i int) bool {
		return s.notes[i].Tick >= start
	})
	sess.beat = int(math.Ceil(start / tab.TicksPerQuarter))
	sess.nextBeat = sess.timeOf(float64(sess.beat) * tab.TicksPerQuarter)
	s.sess = sess
	s.position = start
	s.log.WithFields(logrus.Fields{
		"tick":  start,
		"tempo": s.tempo,
		"speed": s.speed,
		"notes": len(s.notes) - sess.cursor,
	}).Debug("playback started")
	s.mu.Unlock()

	s.pass(sess)
	go s.scheduleLoop(sess)
	go s.reportLoop(sess)
	return nil
}

// Stop ends the current session. It is safe to call at any time; once it
// returns no further tone of the session is triggered.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	sess := s.sess
	if sess == nil {
		return
	}
	s.position = math.Max(sess.start, sess.tickAt(s.clock.Now()))
	s.sess = nil
	close(sess.done)
	s.clock.CancelPending()
	s.log.WithField("tick", s.position).Debug("playback stopped")
}

func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess != nil
}

// CurrentTick returns the playback position derived from the clock, or the
// position playback last stopped at.
func (s *Scheduler) CurrentTick() tab.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTickLocked()
}

func (s *Scheduler) currentTickLocked() tab.Tick {
	if s.sess == nil {
		return s.position
	}
	return math.Max(0, s.sess.tickAt(s.clock.Now()))
}

func (s *Scheduler) SetTempo(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return ErrInvalidTempo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempo = bpm
	s.remapLocked()
	return nil
}

func (s *Scheduler) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

func (s *Scheduler) SetSpeed(multiplier float64) error {
	if !(multiplier > 0) || math.IsInf(multiplier, 0) {
		return ErrInvalidSpeed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = multiplier
	s.remapLocked()
	return nil
}

func (s *Scheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *Scheduler) SetMetronome(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metronome = enabled
}

func (s *Scheduler) Metronome() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metronome
}

func (s *Scheduler) SetMeter(m Meter) error {
	if m != MeterBinary && m != MeterTernary {
		return errors.Wrapf(ErrUnknownMeter, "%d beats", int(m))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meter = m
	return nil
}

func (s *Scheduler) Meter() Meter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meter
}

// OnTick registers the position observer. It runs on the reporting
// goroutine and must not call back into Stop or Play synchronously.
func (s *Scheduler) OnTick(fn func(tab.Tick)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = fn
}

// OnEnded registers the callback fired once when a session plays to the end.
func (s *Scheduler) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// SecondsPerTick is the duration of one tick at the current tempo and speed.
func (s *Scheduler) SecondsPerTick() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondsPerTickLocked()
}

func (s *Scheduler) secondsPerTickLocked() float64 {
	return SecondsPerTick(s.tempo, s.speed)
}

// TimeOf maps a tick to audio clock time for the running session.
func (s *Scheduler) TimeOf(tick tab.Tick) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return 0, false
	}
	return s.sess.timeOf(tick), true
}

// SecondsPerTick derives the tick duration from tempo in beats per minute
// and a speed multiplier; one beat is a quarter note.
func SecondsPerTick(tempo, speed float64) float64 {
	return (60 / (tempo * speed)) / tab.TicksPerQuarter
}

// remapLocked re-derives the clock origin so the current tick stays where it
// is under the new tick duration. Tones already handed to the clock keep
// their times.
func (s *Scheduler) remapLocked() {
	sess := s.sess
	if sess == nil {
		return
	}
	now := s.clock.Now()
	cur := sess.tickAt(now)
	sess.spt = s.secondsPerTickLocked()
	sess.origin = now - cur*sess.spt
	sess.nextBeat = sess.timeOf(float64(sess.beat) * tab.TicksPerQuarter)
}

func (s *Scheduler) scheduleLoop(sess *session) {
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-t.C:
			s.pass(sess)
		}
	}
}

func (s *Scheduler) reportLoop(sess *session) {
	t := time.NewTicker(s.opts.ReportInterval)
	defer t.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-t.C:
			s.mu.Lock()
			if s.sess != sess {
				s.mu.Unlock()
				return
			}
			tick := s.currentTickLocked()
			fn := s.onTick
			s.mu.Unlock()
			if fn != nil {
				fn(tick)
			}
		}
	}
}

// pass schedules every note and metronome beat falling before now+LookAhead.
// The note cursor only moves forward, so notes are triggered once each and
// in tick order.
func (s *Scheduler) pass(sess *session) {
	s.mu.Lock()
	if sess == nil || s.sess != sess {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	horizon := now + s.opts.LookAhead

	for sess.cursor < len(s.notes) {
		ev := s.notes[sess.cursor]
		at := sess.timeOf(ev.Tick)
		if at >= horizon {
			break
		}
		s.triggerLocked(ev, at)
		sess.cursor++
	}

	for sess.nextBeat < horizon {
		if s.metronome && sess.nextBeat >= now-s.opts.BackTolerance {
			accent := sess.beat%int(s.meter) == 0
			click := s.clicks[0]
			if accent {
				click = s.clicks[1]
			}
			s.clock.ScheduleTone(click, sess.nextBeat, s.opts.ClickGain)
		}
		sess.beat++
		sess.nextBeat = sess.timeOf(float64(sess.beat) * tab.TicksPerQuarter)
	}

	var onEnded func()
	if sess.cursor >= len(s.notes) {
		end := sess.start
		if n := len(s.notes); n > 0 && s.notes[n-1].Tick > end {
			end = s.notes[n-1].Tick
		}
		if now > sess.timeOf(end)+s.opts.TrailingMargin {
			s.stopLocked()
			s.position = 0
			onEnded = s.onEnded
			s.log.Debug("playback ended")
		}
	}
	s.mu.Unlock()
	if onEnded != nil {
		onEnded()
	}
}

func (s *Scheduler) triggerLocked(ev tab.Event, at float64) {
	note, ok := s.tuning.Note(ev.StringID)
	if !ok {
		s.log.WithFields(logrus.Fields{"position": ev.StringID, "line": ev.Line}).Debug("no tuning for position, note skipped")
		return
	}
	s.clock.ScheduleTone(s.cache.Playable(note), at, s.opts.NoteGain)
}
