package audio

// OfflineTarget renders a fixed-length buffer in one pass without a device.
// Everything must be scheduled before Render is called.
type OfflineTarget struct {
	mixer    *Mixer
	channels int
	frames   int
}

func NewOfflineTarget(channels, frames, sampleRate int) *OfflineTarget {
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		channels = 2
	}
	return &OfflineTarget{
		mixer:    NewMixer(sampleRate),
		channels: channels,
		frames:   frames,
	}
}

func (t *OfflineTarget) ScheduleTone(buf *Buffer, at float64, gain float64) {
	t.mixer.ScheduleTone(buf, at, gain)
}

func (t *OfflineTarget) Render() *Buffer {
	stereo := make([]float32, t.frames*2)
	t.mixer.Process(stereo)
	if t.channels == 2 {
		return &Buffer{SampleRate: t.mixer.SampleRate(), Channels: 2, Data: stereo}
	}
	out := NewBuffer(1, t.frames, t.mixer.SampleRate())
	for f := 0; f < t.frames; f++ {
		out.Data[f] = (stereo[f*2] + stereo[f*2+1]) * 0.5
	}
	return out
}
