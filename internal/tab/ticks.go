package tab

import "math"

const (
	TicksPerQuarter       = 12
	TicksPerEighth        = 6
	TicksPerTripletEighth = 4
	TicksPerSixteenth     = 3
	TicksPerHalf          = 24
	TicksPerWhole         = 48
)

// durationSymbols maps a delta token to its length in ticks. The half and
// whole values are accepted on input but never offered by the editor.
var durationSymbols = map[string]Tick{
	"+":  TicksPerQuarter,
	"q":  TicksPerQuarter,
	"♪":  TicksPerEighth,
	"e":  TicksPerEighth,
	"♪3": TicksPerTripletEighth,
	"t":  TicksPerTripletEighth,
	"♬":  TicksPerSixteenth,
	"s":  TicksPerSixteenth,
	"𝅗𝅥":  TicksPerHalf,
	"h":  TicksPerHalf,
	"𝅝":  TicksPerWhole,
	"w":  TicksPerWhole,
}

// SymbolTicks returns the tick length of a duration symbol, with dotted
// symbols worth one and a half times the plain value rounded down.
func SymbolTicks(token string) (Tick, bool) {
	if v, ok := durationSymbols[token]; ok {
		return v, true
	}
	if n := len(token); n > 1 && token[n-1] == '.' {
		if v, ok := durationSymbols[token[:n-1]]; ok {
			return math.Floor(v * 1.5), true
		}
	}
	return 0, false
}
