package samples

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/cbegin/tabplay-go/internal/audio"
)

type countingBank struct {
	calls   atomic.Int32
	missing map[string]bool
	delay   time.Duration
}

func (b *countingBank) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.missing[note] {
		return nil, ErrNotFound
	}
	buf := audio.NewBuffer(1, 8, 1000)
	buf.Data[0] = 1
	return buf, nil
}

func TestCacheResolvesEachNoteOnce(t *testing.T) {
	bank := &countingBank{delay: 20 * time.Millisecond}
	log, _ := test.NewNullLogger()
	c := NewCache(bank, 1000, log)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Resolve(context.Background(), "C4"); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := c.Resolve(context.Background(), "C4"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := bank.calls.Load(); got != 1 {
		t.Fatalf("bank called %d times, want 1", got)
	}
}

func TestCachePrepareToleratesFailures(t *testing.T) {
	bank := &countingBank{missing: map[string]bool{"D4": true}}
	log, hook := test.NewNullLogger()
	c := NewCache(bank, 1000, log)
	if err := c.Prepare(context.Background(), []string{"C4", "D4", "E4"}); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, ok := c.Lookup("C4"); !ok {
		t.Fatalf("C4 should be cached")
	}
	if _, ok := c.Lookup("D4"); ok {
		t.Fatalf("D4 should not resolve")
	}
	if len(hook.AllEntries()) != 1 {
		t.Fatalf("expected one warning, got %d", len(hook.AllEntries()))
	}
	if _, err := c.Resolve(context.Background(), "D4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cached ErrNotFound, got %v", err)
	}
	if got := bank.calls.Load(); got != 3 {
		t.Fatalf("failed note should not be retried, bank calls = %d", got)
	}
	fb := c.Playable("D4")
	if fb == nil || fb.Frames() == 0 || fb != c.Fallback("D4") {
		t.Fatalf("expected memoised fallback tone")
	}
}

func TestCacheInvalidate(t *testing.T) {
	bank := &countingBank{}
	c := NewCache(bank, 1000, nil)
	c.Prepare(context.Background(), []string{"C4"})
	c.Invalidate()
	if _, ok := c.Lookup("C4"); ok {
		t.Fatalf("expected empty cache after invalidate")
	}
	c.Prepare(context.Background(), []string{"C4"})
	if got := bank.calls.Load(); got != 2 {
		t.Fatalf("expected reload after invalidate, bank calls = %d", got)
	}
}

func TestCachePrepareCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCache(SynthBank{SampleRate: 1000}, 1000, nil)
	if err := c.Prepare(ctx, []string{"C4"}); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if _, ok := c.Lookup("C4"); ok {
		t.Fatalf("cancelled resolution must not be cached")
	}
}

func TestSynthBankNeverFails(t *testing.T) {
	b := SynthBank{SampleRate: 8000}
	for _, note := range []string{"A4", "???"} {
		buf, err := b.Resolve(context.Background(), note)
		if err != nil || buf.Frames() == 0 {
			t.Fatalf("%s: %v", note, err)
		}
	}
}

func TestDirBankLoadsWAV(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "Cs4.wav"), 8000, 16, []int{16384, -32768, 0, 32767})
	b := NewDirBank(dir, 8000)
	buf, err := b.Resolve(context.Background(), "C#4")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if buf.Channels != 1 || buf.Frames() != 4 {
		t.Fatalf("unexpected buffer %+v", buf)
	}
	if buf.Data[0] != 0.5 || buf.Data[1] != -1 {
		t.Fatalf("unexpected samples %v", buf.Data)
	}
	if _, err := b.Resolve(context.Background(), "D4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirBankCentresEightBitWAV(t *testing.T) {
	dir := t.TempDir()
	// Unsigned 8-bit: 128 is silence.
	writeWAV(t, filepath.Join(dir, "A4.wav"), 8000, 8, []int{128, 192, 0, 255})
	buf, err := NewDirBank(dir, 8000).Resolve(context.Background(), "A4")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []float32{0, 0.5, -1, 127.0 / 128}
	if len(buf.Data) != len(want) {
		t.Fatalf("got %d samples, want %d", len(buf.Data), len(want))
	}
	for i, w := range want {
		if buf.Data[i] != w {
			t.Fatalf("sample %d = %v, want %v (all %v)", i, buf.Data[i], w, buf.Data)
		}
	}
}

func writeWAV(t *testing.T, path string, rate, bitDepth int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, bitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}
