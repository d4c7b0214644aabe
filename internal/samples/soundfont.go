package samples

import (
	"context"
	"os"
	"sync"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/tuning"
	"github.com/pkg/errors"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

const (
	soundFontHold     = 1.0
	soundFontRelease  = 1.0
	soundFontVelocity = 100
)

// SoundFontBank renders each note from a SoundFont preset into a fixed-length
// stereo buffer: one second held, one second of release.
type SoundFontBank struct {
	sampleRate int
	program    int32

	mu   sync.Mutex
	font *meltysynth.SoundFont
}

func LoadSoundFont(path string, sampleRate int, program int) (*SoundFontBank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open soundfont %s", path)
	}
	defer f.Close()
	font, err := meltysynth.NewSoundFont(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse soundfont %s", path)
	}
	return &SoundFontBank{sampleRate: sampleRate, program: int32(program), font: font}, nil
}

func (b *SoundFontBank) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := tuning.MIDIKey(note)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no MIDI key for %q", note)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	synth, err := meltysynth.NewSynthesizer(b.font, meltysynth.NewSynthesizerSettings(int32(b.sampleRate)))
	if err != nil {
		return nil, errors.Wrap(err, "create synthesizer")
	}
	synth.ProcessMidiMessage(0, 0xC0, b.program, 0)

	hold := int(soundFontHold * float64(b.sampleRate))
	total := hold + int(soundFontRelease*float64(b.sampleRate))
	left := make([]float32, total)
	right := make([]float32, total)
	synth.NoteOn(0, int32(key), soundFontVelocity)
	synth.Render(left[:hold], right[:hold])
	synth.NoteOff(0, int32(key))
	synth.Render(left[hold:], right[hold:])

	out := audio.NewBuffer(2, total, b.sampleRate)
	for i := 0; i < total; i++ {
		out.Data[i*2] = left[i]
		out.Data[i*2+1] = right[i]
	}
	return out, nil
}
