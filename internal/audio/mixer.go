package audio

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

type voice struct {
	buf   *Buffer
	start int64
	pos   int
	gain  float32
	seq   uint64
}

type MixerOption func(*Mixer)

// WithSampleTap installs a callback invoked with each rendered stereo block.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) MixerOption {
	return func(m *Mixer) {
		m.tap = tap
	}
}

// Mixer sums scheduled tones into a stereo stream. Its clock advances only
// as frames are rendered, so a tone scheduled at time t always starts at
// frame round(t*rate) whether the mixer feeds a device or an offline buffer.
type Mixer struct {
	mu      sync.Mutex
	rate    int
	frame   atomic.Int64
	pending []*voice
	active  []*voice
	seq     uint64
	tap     func([]float32)
}

func NewMixer(sampleRate int, opts ...MixerOption) *Mixer {
	m := &Mixer{rate: sampleRate}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mixer) SampleRate() int { return m.rate }

func (m *Mixer) Now() float64 {
	return float64(m.frame.Load()) / float64(m.rate)
}

func (m *Mixer) ScheduleTone(buf *Buffer, at float64, gain float64) {
	if buf.Frames() == 0 {
		return
	}
	start := int64(math.Round(at * float64(m.rate)))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	v := &voice{buf: buf, start: start, gain: float32(gain), seq: m.seq}
	i := sort.Search(len(m.pending), func(i int) bool {
		return m.pending[i].start > start
	})
	m.pending = append(m.pending, nil)
	copy(m.pending[i+1:], m.pending[i:])
	m.pending[i] = v
}

func (m *Mixer) CancelPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = m.pending[:0]
}

// Resume is a no-op: a bare mixer runs whenever it is asked for frames.
func (m *Mixer) Resume(context.Context) error { return nil }

// ActiveVoices returns the number of tones sounding or waiting to start.
func (m *Mixer) ActiveVoices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) + len(m.pending)
}

// Process renders len(dst)/2 interleaved stereo frames and advances the clock.
func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	frames := len(dst) / 2
	base := m.frame.Load()
	for f := 0; f < frames; f++ {
		now := base + int64(f)
		for len(m.pending) > 0 && m.pending[0].start <= now {
			m.active = append(m.active, m.pending[0])
			m.pending = m.pending[1:]
		}
		var l, r float32
		n := 0
		for _, v := range m.active {
			l += v.buf.At(v.pos, 0) * v.gain
			r += v.buf.At(v.pos, 1) * v.gain
			v.pos++
			if v.pos < v.buf.Frames() {
				m.active[n] = v
				n++
			}
		}
		for i := n; i < len(m.active); i++ {
			m.active[i] = nil
		}
		m.active = m.active[:n]
		dst[f*2] = l
		dst[f*2+1] = r
	}
	m.frame.Store(base + int64(frames))
	tap := m.tap
	m.mu.Unlock()
	if tap != nil {
		tap(dst)
	}
}
