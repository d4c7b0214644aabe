// Package export encodes rendered buffers as 16-bit PCM WAV or 320 kbps MP3.
package export

import (
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/cbegin/tabplay-go/internal/audio"
)

const (
	HeaderSize = 44
	BitDepth   = 16
	pcmFormat  = 1
)

var ErrEmptyBuffer = errors.New("export: empty buffer")

// WAVSize is the encoded length of a frames x channels 16-bit PCM file.
func WAVSize(frames, channels int) int {
	return HeaderSize + frames*channels*BitDepth/8
}

// Quantize maps a float sample to 16-bit PCM. Input is clamped to [-1, 1];
// negative values scale by 32768 and positive values by 32767.
func Quantize(s float32) int16 {
	switch {
	case s < -1:
		s = -1
	case s > 1:
		s = 1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// WAV encodes buf as a RIFF/WAVE file with a 44-byte header.
func WAV(buf *audio.Buffer) ([]byte, error) {
	if buf == nil || buf.Channels <= 0 || buf.SampleRate <= 0 {
		return nil, ErrEmptyBuffer
	}
	ws := &memWriteSeeker{buf: make([]byte, 0, WAVSize(buf.Frames(), buf.Channels))}
	enc := wav.NewEncoder(ws, buf.SampleRate, BitDepth, buf.Channels, pcmFormat)
	pcm := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           make([]int, len(buf.Data)),
		SourceBitDepth: BitDepth,
	}
	for i, s := range buf.Data {
		pcm.Data[i] = int(Quantize(s))
	}
	if err := enc.Write(pcm); err != nil {
		return nil, errors.Wrap(err, "encode wav samples")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "finalize wav header")
	}
	return ws.buf, nil
}

// memWriteSeeker lets the WAV encoder patch its header sizes after the data
// has been written.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		if need > cap(m.buf) {
			grown := make([]byte, need, need*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:need]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.pos = int(next)
	return next, nil
}
