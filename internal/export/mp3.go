package export

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	lame "github.com/viert/go-lame"

	"github.com/cbegin/tabplay-go/internal/audio"
)

const (
	BitrateKbps = 320
	// BlockFrames is one MPEG-1 Layer III frame worth of samples per channel.
	BlockFrames = 1152
	// MinSampleRate is the lowest MPEG-1 rate; LAME lowers the bitrate below it.
	MinSampleRate = 32000
)

var ErrUnsupportedRate = errors.New("export: sample rate too low for 320 kbps mp3")

// MP3 encodes buf at a constant 320 kbps. Rates below MinSampleRate are
// rejected with ErrUnsupportedRate. Samples go through the same
// quantization as WAV and are fed to the encoder in BlockFrames blocks.
func MP3(buf *audio.Buffer) ([]byte, error) {
	if buf == nil || buf.Channels <= 0 || buf.SampleRate <= 0 {
		return nil, ErrEmptyBuffer
	}
	if buf.SampleRate < MinSampleRate {
		return nil, errors.Wrapf(ErrUnsupportedRate, "%d Hz", buf.SampleRate)
	}
	var out bytes.Buffer
	enc := lame.NewEncoder(&out)
	defer enc.Close()
	if err := enc.SetInSamplerate(buf.SampleRate); err != nil {
		return nil, errors.Wrapf(err, "mp3 sample rate %d", buf.SampleRate)
	}
	if err := enc.SetNumChannels(buf.Channels); err != nil {
		return nil, errors.Wrapf(err, "mp3 channels %d", buf.Channels)
	}
	if err := enc.SetBrate(BitrateKbps); err != nil {
		return nil, errors.Wrapf(err, "mp3 bitrate %d", BitrateKbps)
	}

	frames := buf.Frames()
	block := make([]byte, BlockFrames*buf.Channels*2)
	for start := 0; start < frames; start += BlockFrames {
		end := min(start+BlockFrames, frames)
		n := 0
		for _, s := range buf.Data[start*buf.Channels : end*buf.Channels] {
			binary.LittleEndian.PutUint16(block[n:], uint16(Quantize(s)))
			n += 2
		}
		if _, err := enc.Write(block[:n]); err != nil {
			return nil, errors.Wrapf(err, "encode mp3 block at frame %d", start)
		}
	}
	if _, err := enc.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush mp3 encoder")
	}
	return out.Bytes(), nil
}
