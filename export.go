package tabplay

import (
	"context"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/export"
	"github.com/cbegin/tabplay-go/internal/render"
)

type RenderStats = render.Stats

// Render produces the loaded timeline offline at the current tempo and
// tuning. Speed does not apply to offline renders.
func (e *Engine) Render(ctx context.Context) (*audio.Buffer, RenderStats, error) {
	r := render.New(e.cache, e.log)
	buf, stats, err := r.Render(ctx, e.Events(), e.sched.Tuning(), e.sched.Tempo())
	if err != nil {
		return nil, stats, err
	}
	if stats.Dropped > 0 {
		e.log.WithField("dropped", stats.Dropped).Warn("some notes had no sample and were left out of the render")
	}
	return buf, stats, nil
}

// ExportWAV renders the timeline and encodes it as 16-bit PCM WAV.
func (e *Engine) ExportWAV(ctx context.Context) ([]byte, error) {
	buf, _, err := e.Render(ctx)
	if err != nil {
		return nil, err
	}
	return export.WAV(buf)
}

// ExportMP3 renders the timeline and encodes it as 320 kbps MP3. The engine's
// sample rate must be at least export.MinSampleRate.
func (e *Engine) ExportMP3(ctx context.Context) ([]byte, error) {
	buf, _, err := e.Render(ctx)
	if err != nil {
		return nil, err
	}
	return export.MP3(buf)
}
