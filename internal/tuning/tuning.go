// Package tuning maps instrument positions to note names and note names to pitch.
package tuning

import (
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Tuning maps a position identifier (e.g. "4G") to a note name (e.g. "E3").
type Tuning map[string]string

type file struct {
	Positions map[string]string `yaml:"positions"`
}

// Default returns the stock 21-position tuning: eleven left-hand (G) and ten
// right-hand (D) positions, numbered from the lowest string.
func Default() Tuning {
	return Tuning{
		"1G": "F2", "2G": "C3", "3G": "D3", "4G": "E3", "5G": "G3", "6G": "Bb3",
		"7G": "D4", "8G": "F4", "9G": "A4", "10G": "C5", "11G": "E5",
		"1D": "F3", "2D": "A3", "3D": "C4", "4D": "E4", "5D": "G4",
		"6D": "Bb4", "7D": "D5", "8D": "F5", "9D": "G5", "10D": "A5",
	}
}

func Parse(data []byte) (Tuning, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode tuning")
	}
	if len(f.Positions) == 0 {
		return nil, errors.New("tuning has no positions")
	}
	t := make(Tuning, len(f.Positions))
	for pos, note := range f.Positions {
		if _, ok := noteFrequencies[note]; !ok {
			return nil, errors.Errorf("position %s: unknown note %q", pos, note)
		}
		t[pos] = note
	}
	return t, nil
}

func Load(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read tuning %s", path)
	}
	return Parse(data)
}

// Marshal encodes the tuning in the format Parse accepts.
func (t Tuning) Marshal() ([]byte, error) {
	return yaml.Marshal(file{Positions: t})
}

// Note returns the note name for a position. Position identifiers are matched
// exactly first and then case-insensitively.
func (t Tuning) Note(position string) (string, bool) {
	if n, ok := t[position]; ok {
		return n, true
	}
	for pos, n := range t {
		if strings.EqualFold(pos, position) {
			return n, true
		}
	}
	return "", false
}

// NoteNames returns the distinct note names referenced by the tuning, sorted.
func (t Tuning) NoteNames() []string {
	seen := make(map[string]struct{}, len(t))
	out := make([]string, 0, len(t))
	for _, n := range t {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
