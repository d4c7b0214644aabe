package tuning

import "math"

// DefaultFrequency is used for note names missing from the table.
const DefaultFrequency = 440.0

var pitchClasses = []struct {
	names  []string
	offset int
}{
	{[]string{"C", "B#"}, 0},
	{[]string{"C#", "Db"}, 1},
	{[]string{"D"}, 2},
	{[]string{"D#", "Eb"}, 3},
	{[]string{"E", "Fb"}, 4},
	{[]string{"F", "E#"}, 5},
	{[]string{"F#", "Gb"}, 6},
	{[]string{"G"}, 7},
	{[]string{"G#", "Ab"}, 8},
	{[]string{"A"}, 9},
	{[]string{"A#", "Bb"}, 10},
	{[]string{"B", "Cb"}, 11},
}

var (
	noteKeys        = buildNoteKeys()
	noteFrequencies = buildNoteFrequencies()
)

// buildNoteKeys enumerates C0..B8 as MIDI key numbers (C4 = 60). Enharmonic
// spellings that cross an octave boundary (B#, Cb) keep the written octave.
func buildNoteKeys() map[string]int {
	keys := make(map[string]int, 9*len(pitchClasses)*2)
	for octave := 0; octave <= 8; octave++ {
		for _, pc := range pitchClasses {
			for _, name := range pc.names {
				key := (octave+1)*12 + pc.offset
				switch name {
				case "B#":
					key += 12
				case "Cb":
					key -= 12
				}
				keys[name+string(rune('0'+octave))] = key
			}
		}
	}
	return keys
}

func buildNoteFrequencies() map[string]float64 {
	freqs := make(map[string]float64, len(noteKeys))
	for name, key := range noteKeys {
		freqs[name] = math.Round(440*math.Pow(2, float64(key-69)/12)*100) / 100
	}
	return freqs
}

// Frequency returns the pitch of a note name in Hz, or DefaultFrequency.
func Frequency(note string) float64 {
	if f, ok := noteFrequencies[note]; ok {
		return f
	}
	return DefaultFrequency
}

// MIDIKey returns the MIDI key number of a note name.
func MIDIKey(note string) (int, bool) {
	k, ok := noteKeys[note]
	return k, ok
}
