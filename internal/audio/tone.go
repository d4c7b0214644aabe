package audio

import "math"

const (
	toneSeconds  = 1.5
	toneDecay    = 3.0
	toneAttack   = 0.005
	clickSeconds = 0.05
)

// Tone synthesizes the stand-in for a missing sample: a sine at freq with a
// short attack and an exponential decay.
func Tone(freq float64, sampleRate int) *Buffer {
	return decayingSine(freq, toneSeconds, toneDecay, 0.6, sampleRate)
}

// Click synthesizes a metronome tick. The accented click opens a measure and
// is both higher and louder.
func Click(accent bool, sampleRate int) *Buffer {
	if accent {
		return decayingSine(1500, clickSeconds, 60, 1.0, sampleRate)
	}
	return decayingSine(1000, clickSeconds, 60, 0.6, sampleRate)
}

func decayingSine(freq, seconds, decay, amp float64, sampleRate int) *Buffer {
	frames := int(seconds * float64(sampleRate))
	buf := NewBuffer(1, frames, sampleRate)
	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		env := math.Exp(-decay * t)
		if t < toneAttack {
			env *= t / toneAttack
		}
		buf.Data[i] = float32(amp * env * math.Sin(2*math.Pi*freq*t))
	}
	return buf
}
