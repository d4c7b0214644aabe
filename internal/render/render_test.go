package render

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/samples"
	"github.com/cbegin/tabplay-go/internal/tab"
	"github.com/cbegin/tabplay-go/internal/tuning"
)

const testRate = 8000

type partialBank struct {
	missing map[string]bool
}

func (b partialBank) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	if b.missing[note] {
		return nil, samples.ErrNotFound
	}
	return samples.SynthBank{SampleRate: testRate}.Resolve(ctx, note)
}

func newRenderer(bank samples.Bank) *Renderer {
	log, _ := test.NewNullLogger()
	return New(samples.NewCache(bank, testRate, log), log)
}

func digest(buf *audio.Buffer) string {
	h := sha256.New()
	var word [4]byte
	for _, s := range buf.Data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(s))
		h.Write(word[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func TestRenderIsDeterministic(t *testing.T) {
	events := tab.Parse("0 1G\n6 2D\n= 3G I\ne 4D\nq SILENCE\n12 5G")
	var sums []string
	for i := 0; i < 2; i++ {
		buf, stats, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), events, tuning.Default(), 120)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if stats.Rendered != 5 || stats.Dropped != 0 {
			t.Fatalf("unexpected stats %+v", stats)
		}
		sums = append(sums, digest(buf))
	}
	if sums[0] != sums[1] {
		t.Fatalf("render not deterministic\nfirst:  %s\nsecond: %s", sums[0], sums[1])
	}
}

func TestRenderLength(t *testing.T) {
	events := tab.Parse("0 1G\n48 2G")
	buf, stats, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), events, tuning.Default(), 120)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// 48 ticks at 120 bpm is two seconds, plus the tail.
	if math.Abs(stats.Seconds-5) > 1e-9 {
		t.Fatalf("seconds = %v, want 5", stats.Seconds)
	}
	if frames := buf.Frames(); buf.Channels != Channels || frames < 5*testRate || frames > 5*testRate+1 {
		t.Fatalf("unexpected buffer: %d channels, %d frames", buf.Channels, frames)
	}
	if d := buf.Duration(); d < 5*time.Second || d > 5*time.Second+time.Millisecond {
		t.Fatalf("duration = %v, want 5s", d)
	}
}

func TestRenderIgnoresSpeedAndStartsAtTickTime(t *testing.T) {
	events := tab.Parse("24 1D")
	buf, _, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), events, tuning.Default(), 60)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// 24 ticks at 60 bpm land on frame 2s.
	onset := 2 * testRate
	for f := 0; f < onset; f++ {
		if buf.At(f, 0) != 0 {
			t.Fatalf("sound before onset at frame %d", f)
		}
	}
	var peak float32
	for f := onset; f < onset+testRate/10; f++ {
		if v := buf.At(f, 0); v > peak {
			peak = v
		}
	}
	if peak == 0 {
		t.Fatalf("expected the note after its onset")
	}
}

func TestRenderDropsUnavailableNotes(t *testing.T) {
	tun := tuning.Default()
	missing, _ := tun.Note("2G")
	r := newRenderer(partialBank{missing: map[string]bool{missing: true}})
	events := tab.Parse("0 1G\n12 2G\n12 99X")
	buf, stats, err := r.Render(context.Background(), events, tun, 120)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.Rendered != 1 || stats.Dropped != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	only, _, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), tab.Parse("0 1G"), tun, 120)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for f := 0; f < only.Frames(); f++ {
		if buf.At(f, 0) != only.At(f, 0) {
			t.Fatalf("dropped notes leaked into the render at frame %d", f)
		}
	}
}

func TestRenderEmptyTimeline(t *testing.T) {
	buf, stats, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), nil, tuning.Default(), 120)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.Rendered != 0 || buf.Frames() != int(TailSeconds*testRate) {
		t.Fatalf("expected silent tail only, got %d frames", buf.Frames())
	}
}

func TestRenderRejectsBadTempo(t *testing.T) {
	if _, _, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), nil, tuning.Default(), 0); err == nil {
		t.Fatalf("expected error for zero tempo")
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(ctx, tab.Parse("0 1G"), tuning.Default(), 120)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestRenderRejectsOverlongTimeline(t *testing.T) {
	cases := map[string]string{
		"huge delta":      "1000000000000 1G",
		"301-digit delta": "1" + strings.Repeat("0", 300) + " 1G",
	}
	for name, text := range cases {
		buf, _, err := newRenderer(samples.SynthBank{SampleRate: testRate}).Render(context.Background(), tab.Parse(text), tuning.Default(), 120)
		if !errors.Is(err, ErrTooLong) {
			t.Fatalf("%s: expected ErrTooLong, got %v", name, err)
		}
		if buf != nil {
			t.Fatalf("%s: expected no buffer", name)
		}
	}
}
