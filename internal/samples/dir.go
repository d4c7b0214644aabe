package samples

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/dh1tw/gosamplerate"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
)

// DirBank loads <dir>/<note>.wav or <dir>/<note>.mp3. Sharps may also be
// spelled "s" in file names (C#4 -> Cs4).
type DirBank struct {
	Dir        string
	SampleRate int
}

func NewDirBank(dir string, sampleRate int) *DirBank {
	return &DirBank{Dir: dir, SampleRate: sampleRate}
}

func (b *DirBank) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range candidateNames(note) {
		for _, ext := range []string{".wav", ".mp3"} {
			path := filepath.Join(b.Dir, name+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			var (
				buf *audio.Buffer
				err error
			)
			if ext == ".wav" {
				buf, err = decodeWAV(path)
			} else {
				buf, err = decodeMP3(path)
			}
			if err != nil {
				return nil, err
			}
			return resample(buf, b.SampleRate)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s in %s", note, b.Dir)
}

func candidateNames(note string) []string {
	if strings.Contains(note, "#") {
		return []string{note, strings.ReplaceAll(note, "#", "s")}
	}
	return []string{note}
}

func decodeWAV(path string) (*audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.Errorf("invalid WAV file: %s", path)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, errors.Errorf("unknown bit depth for WAV file: %s", path)
	}
	scale := float32(int64(1) << (bitDepth - 1))
	// 8-bit WAV is unsigned, centred on 128.
	var offset float32
	if bitDepth == 8 {
		offset = 128
	}
	out := &audio.Buffer{
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
		Data:       make([]float32, len(pcm.Data)),
	}
	for i, s := range pcm.Data {
		out.Data[i] = (float32(s) - offset) / scale
	}
	return out, nil
}

func decodeMP3(path string) (*audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	out := &audio.Buffer{
		SampleRate: dec.SampleRate(),
		Channels:   2,
		Data:       make([]float32, len(raw)/2),
	}
	for i := range out.Data {
		out.Data[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return out, nil
}

func resample(buf *audio.Buffer, rate int) (*audio.Buffer, error) {
	if buf.SampleRate == rate || rate <= 0 {
		return buf, nil
	}
	ratio := float64(rate) / float64(buf.SampleRate)
	data, err := gosamplerate.Simple(buf.Data, ratio, buf.Channels, gosamplerate.SRC_SINC_BEST_QUALITY)
	if err != nil {
		return nil, errors.Wrap(err, "resample")
	}
	return &audio.Buffer{SampleRate: rate, Channels: buf.Channels, Data: data}, nil
}
