package audio

import "time"

// Buffer is decoded or synthesized PCM, interleaved when Channels > 1.
type Buffer struct {
	SampleRate int
	Channels   int
	Data       []float32
}

func NewBuffer(channels, frames, sampleRate int) *Buffer {
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       make([]float32, channels*frames),
	}
}

func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// At returns the sample for channel ch of frame f. Mono buffers feed every channel.
func (b *Buffer) At(f, ch int) float32 {
	if ch >= b.Channels {
		ch = b.Channels - 1
	}
	return b.Data[f*b.Channels+ch]
}
