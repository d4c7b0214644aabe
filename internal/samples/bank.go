// Package samples resolves note names to decoded audio buffers.
package samples

import (
	"context"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/tuning"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by banks that hold no sample for a note.
var ErrNotFound = errors.New("sample not found")

// Bank resolves a note name (e.g. "Bb3") to a buffer at the bank's sample rate.
type Bank interface {
	Resolve(ctx context.Context, note string) (*audio.Buffer, error)
}

// SynthBank synthesizes every note and never fails. It stands in when no
// sample assets are configured.
type SynthBank struct {
	SampleRate int
}

func (b SynthBank) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return audio.Tone(tuning.Frequency(note), b.SampleRate), nil
}
