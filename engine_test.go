package tabplay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/config"
	"github.com/cbegin/tabplay-go/internal/export"
	"github.com/cbegin/tabplay-go/internal/samples"
)

const testRate = 8000

// stillClock never advances, so playback stays where it started.
type stillClock struct {
	mu    sync.Mutex
	now   float64
	tones int
}

func (c *stillClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stillClock) ScheduleTone(*audio.Buffer, float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tones++
}

func (c *stillClock) CancelPending() {}
func (c *stillClock) Resume(context.Context) error { return nil }

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	log, _ := test.NewNullLogger()
	base := []EngineOption{
		WithSampleRate(testRate),
		WithLogger(log),
		WithClock(&stillClock{}),
		WithBank(samples.SynthBank{SampleRate: testRate}),
	}
	e, err := NewEngine(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestNewEngineAppliesConfig(t *testing.T) {
	conf := config.Default()
	conf.Tempo = 90
	conf.Speed = 0.5
	conf.Meter = 3
	conf.Metronome = true
	e := newTestEngine(t, WithConfig(conf))
	if e.Tempo() != 90 || e.Speed() != 0.5 || e.Meter() != MeterTernary || !e.Metronome() {
		t.Fatalf("config not applied: tempo %v speed %v meter %v metronome %v", e.Tempo(), e.Speed(), e.Meter(), e.Metronome())
	}
	if conf.SampleRate != 44100 {
		t.Fatalf("engine must not mutate the caller's config")
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	log, _ := test.NewNullLogger()
	if _, err := NewEngine(WithSampleRate(-1), WithLogger(log)); err == nil {
		t.Fatalf("expected error for negative sample rate")
	}
	conf := config.Default()
	conf.Meter = 7
	if _, err := NewEngine(WithConfig(conf), WithClock(&stillClock{}), WithLogger(log)); err == nil {
		t.Fatalf("expected error for unknown meter")
	}
}

func TestEngineLoadAndEvents(t *testing.T) {
	e := newTestEngine(t)
	events := e.Load("0 1G\n12 TXT hello\n12 2D")
	if len(events) != 3 || len(e.Events()) != 3 {
		t.Fatalf("expected three events, got %d", len(events))
	}
	got := e.Events()
	got[0].StringID = "changed"
	if e.Events()[0].StringID != "1G" {
		t.Fatalf("Events must return a copy")
	}
}

func TestEnginePlayStopResume(t *testing.T) {
	e := newTestEngine(t)
	e.Load("0 1G\n12 2G\n12 3G")
	if err := e.Play(context.Background(), 12); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !e.Playing() {
		t.Fatalf("expected playing")
	}
	ch := e.Watch()
	e.Stop()
	if e.Playing() {
		t.Fatalf("expected stopped")
	}
	if got := e.CurrentTick(); got != 12 {
		t.Fatalf("stopped at %v, want 12", got)
	}
	sawEnd := false
	for len(ch) > 0 {
		if ev := <-ch; ev.Kind == EventPlaybackEnded {
			sawEnd = true
		}
	}
	if !sawEnd {
		t.Fatalf("expected an end event on stop")
	}
	// Wait must not block once stopped.
	e.Wait()
	e.Stop()
}

func TestEngineLoadResetsPosition(t *testing.T) {
	e := newTestEngine(t)
	e.Load("0 1G\n24 2G")
	if err := e.Play(context.Background(), 24); err != nil {
		t.Fatalf("play: %v", err)
	}
	e.Load("0 3G")
	if e.Playing() || e.CurrentTick() != 0 {
		t.Fatalf("load should stop and rewind, playing=%v tick=%v", e.Playing(), e.CurrentTick())
	}
}

func TestEngineRejectsInvalidSettings(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetTempo(0); err == nil {
		t.Fatalf("expected tempo error")
	}
	if err := e.SetSpeed(-1); err == nil {
		t.Fatalf("expected speed error")
	}
	if err := e.SetMeter(5); err == nil {
		t.Fatalf("expected meter error")
	}
	if e.Tempo() != 120 || e.Speed() != 1 || e.Meter() != MeterBinary {
		t.Fatalf("invalid settings must not change state")
	}
}

func TestEngineWaitReturnsOnEnd(t *testing.T) {
	clock := audio.NewMixer(testRate)
	conf := config.Default()
	conf.Interval = 5 * time.Millisecond
	e := newTestEngine(t, WithClock(clock), WithConfig(conf))
	e.Load("0 1G")
	ended := make(chan struct{}, 2)
	e.OnEnded(func() { ended <- struct{}{} })
	if err := e.Play(context.Background(), 0); err != nil {
		t.Fatalf("play: %v", err)
	}
	// Advance the mixer clock past the note and the trailing margin.
	block := make([]float32, 2*testRate)
	for i := 0; i < 3; i++ {
		clock.Process(block)
	}
	waited := make(chan struct{})
	go func() {
		e.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not return after playback ended")
	}
	if len(ended) != 1 {
		t.Fatalf("OnEnded fired %d times, want 1", len(ended))
	}
	if e.CurrentTick() != 0 {
		t.Fatalf("natural end should rewind, tick = %v", e.CurrentTick())
	}
}

func TestEngineExportDeterministic(t *testing.T) {
	e := newTestEngine(t)
	e.Load("0 1G\ne 2D\n= 3G I\nq 5D\nh 7G")
	var sums []string
	for i := 0; i < 2; i++ {
		wav, err := e.ExportWAV(context.Background())
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		buf, _, err := e.Render(context.Background())
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if len(wav) != export.WAVSize(buf.Frames(), buf.Channels) {
			t.Fatalf("wav size %d does not match render", len(wav))
		}
		sum := sha256.Sum256(wav)
		sums = append(sums, hex.EncodeToString(sum[:]))
	}
	if sums[0] != sums[1] {
		t.Fatalf("export not deterministic\nfirst:  %s\nsecond: %s", sums[0], sums[1])
	}
}

func TestEngineExportIgnoresSpeed(t *testing.T) {
	e := newTestEngine(t)
	e.Load("0 1G\n48 2G")
	a, _, err := e.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := e.SetSpeed(2); err != nil {
		t.Fatal(err)
	}
	b, _, err := e.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if a.Frames() != b.Frames() {
		t.Fatalf("speed changed render length: %d vs %d", a.Frames(), b.Frames())
	}
}

type flakyBank struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (b *flakyBank) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail {
		return nil, samples.ErrNotFound
	}
	return samples.SynthBank{SampleRate: testRate}.Resolve(ctx, note)
}

func TestEngineReloadSamples(t *testing.T) {
	bank := &flakyBank{fail: true}
	e := newTestEngine(t, WithBank(bank))
	e.Load("0 1G")
	_, stats, err := e.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.Dropped != 1 {
		t.Fatalf("expected the note dropped while the bank fails, got %+v", stats)
	}
	bank.mu.Lock()
	bank.fail = false
	bank.mu.Unlock()
	if err := e.ReloadSamples(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	_, stats, err = e.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.Rendered != 1 || stats.Dropped != 0 {
		t.Fatalf("expected the note after reload, got %+v", stats)
	}
}

func TestEngineLateEndKeepsNewSessionWaiting(t *testing.T) {
	e := newTestEngine(t)
	e.Load("0 1G\n12 2G")
	if err := e.Play(context.Background(), 0); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := e.Play(context.Background(), 12); err != nil {
		t.Fatalf("replay: %v", err)
	}
	// The replaced session reports its end after the new one started.
	e.handleEnded()

	waited := make(chan struct{})
	go func() {
		e.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatalf("Wait returned while the new session is still playing")
	case <-time.After(50 * time.Millisecond):
	}
	e.Stop()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not return after Stop")
	}
}
