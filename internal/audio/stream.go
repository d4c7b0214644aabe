package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/pkg/errors"
)

type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the float32 little-endian stereo
// byte stream the device player pulls from. It never reports EOF, so the
// device keeps running on silence between sessions.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, errors.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// Output is the live Clock: a Mixer streamed to the default audio device.
// The device is opened on the first Resume.
type Output struct {
	mixer      *Mixer
	bufferSize time.Duration

	mu     sync.Mutex
	player *ebitaudio.Player
}

func NewOutput(mixer *Mixer, bufferSize time.Duration) *Output {
	return &Output{mixer: mixer, bufferSize: bufferSize}
}

func (o *Output) Now() float64 { return o.mixer.Now() }

func (o *Output) ScheduleTone(buf *Buffer, at float64, gain float64) {
	o.mixer.ScheduleTone(buf, at, gain)
}

func (o *Output) CancelPending() { o.mixer.CancelPending() }

func (o *Output) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		actx, err := sharedAudioContext(o.mixer.SampleRate())
		if err != nil {
			return err
		}
		for !actx.IsReady() {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "waiting for audio device")
			case <-time.After(10 * time.Millisecond):
			}
		}
		pl, err := actx.NewPlayerF32(NewStreamReader(o.mixer))
		if err != nil {
			return errors.Wrap(err, "open audio player")
		}
		if o.bufferSize > 0 {
			pl.SetBufferSize(o.bufferSize)
		}
		o.player = pl
	}
	if !o.player.IsPlaying() {
		o.player.Play()
	}
	return nil
}

// Position returns what the listener hears right now, which trails the
// mixer clock by the device buffer.
func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return 0
	}
	return o.player.Position()
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return nil
	}
	o.player.Pause()
	err := o.player.Close()
	o.player = nil
	return err
}
