// Package render produces the offline, speed-independent rendering of a
// timeline that export encoders consume.
package render

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/samples"
	"github.com/cbegin/tabplay-go/internal/scheduler"
	"github.com/cbegin/tabplay-go/internal/tab"
	"github.com/cbegin/tabplay-go/internal/tuning"
)

const (
	// TailSeconds is appended after the last event so release tails survive.
	TailSeconds = 3.0
	Channels    = 2
	NoteGain    = 0.8
	// MaxRenderSeconds bounds the offline buffer, tail included.
	MaxRenderSeconds = 3600.0
)

var ErrTooLong = errors.New("render too long")

type Stats struct {
	Rendered int
	Dropped  int
	Seconds  float64
}

type Renderer struct {
	cache *samples.Cache
	log   logrus.FieldLogger
}

func New(cache *samples.Cache, log logrus.FieldLogger) *Renderer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Renderer{cache: cache, log: log.WithField("component", "render")}
}

// Render schedules every note of events at unit speed into an offline target
// and renders it in one pass. Notes whose position has no tuning, or whose
// sample cannot be resolved, are left out of the render rather than failing
// the export or substituting a synthesized tone.
func (r *Renderer) Render(ctx context.Context, events []tab.Event, t tuning.Tuning, tempo float64) (*audio.Buffer, Stats, error) {
	if !(tempo > 0) {
		return nil, Stats{}, errors.Wrapf(scheduler.ErrInvalidTempo, "render at %v bpm", tempo)
	}
	rate := r.cache.SampleRate()
	spt := scheduler.SecondsPerTick(tempo, 1)
	seconds := tab.LastTick(events)*spt + TailSeconds
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds > MaxRenderSeconds {
		return nil, Stats{}, errors.Wrapf(ErrTooLong, "%g s exceeds %g s", seconds, MaxRenderSeconds)
	}
	frames := int(math.Ceil(seconds * float64(rate)))
	target := audio.NewOfflineTarget(Channels, frames, rate)

	stats := Stats{Seconds: seconds}
	for _, ev := range tab.Notes(events) {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		note, ok := t.Note(ev.StringID)
		if !ok {
			stats.Dropped++
			r.log.WithFields(logrus.Fields{"position": ev.StringID, "line": ev.Line}).Debug("no tuning for position, note dropped from render")
			continue
		}
		buf, err := r.cache.Resolve(ctx, note)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			stats.Dropped++
			r.log.WithError(err).WithFields(logrus.Fields{"note": note, "line": ev.Line}).Debug("sample unavailable, note dropped from render")
			continue
		}
		target.ScheduleTone(buf, ev.Tick*spt, NoteGain)
		stats.Rendered++
	}
	return target.Render(), stats, nil
}
