package tab

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numericDelta = regexp.MustCompile(`^([0-9]+\.?[0-9]*|\.[0-9]+)$`)

// thumbPositions are played with the thumb unless a line says otherwise;
// every other position defaults to the index finger.
var thumbPositions = map[string]struct{}{
	"1G": {}, "2G": {}, "3G": {},
	"1D": {}, "2D": {}, "3D": {},
}

// DefaultFingering returns the fingering a position gets when the line has no override.
func DefaultFingering(stringID string) Fingering {
	if _, ok := thumbPositions[strings.ToUpper(stringID)]; ok {
		return FingerThumb
	}
	return FingerIndex
}

// cursor is the running position threaded through the lines.
type cursor struct {
	tick   Tick
	last   Tick
	events []Event
}

// Parse converts tablature text into a timeline sorted by tick. It never
// fails: malformed deltas fall back to a quarter note and short lines are
// skipped.
func Parse(text string) []Event {
	if strings.TrimSpace(text) == "" {
		return []Event{}
	}
	st := cursor{events: make([]Event, 0, 64)}
	for i, line := range strings.Split(text, "\n") {
		st = st.step(i, strings.Fields(line))
	}
	sort.SliceStable(st.events, func(a, b int) bool {
		return st.events[a].Tick < st.events[b].Tick
	})
	return st.events
}

func (c cursor) step(lineIndex int, fields []string) cursor {
	if len(fields) < 2 {
		return c
	}
	if fields[0] == "=" {
		c.tick = 0
		if len(c.events) > 0 {
			c.tick = c.last
		}
	} else {
		c.tick += resolveDelta(fields[0])
	}

	ev := Event{Tick: c.tick, Line: lineIndex}
	switch content := strings.ToUpper(fields[1]); content {
	case "TXT":
		ev.Kind = KindText
		ev.Message = strings.Join(fields[2:], " ")
	case "PAGE":
		ev.Kind = KindPageBreak
	case "S", "SILENCE", "SEP":
		return c
	default:
		ev.Kind = KindNote
		ev.StringID = fields[1]
		ev.Fingering = DefaultFingering(fields[1])
		if len(fields) > 2 {
			switch f := Fingering(strings.ToUpper(fields[2])); f {
			case FingerThumb, FingerIndex:
				ev.Fingering = f
			}
		}
	}
	ev.ID = "ev-" + strconv.Itoa(len(c.events)+1)
	c.events = append(c.events, ev)
	c.last = ev.Tick
	return c
}

func resolveDelta(token string) Tick {
	if numericDelta.MatchString(token) {
		if v, err := strconv.ParseFloat(token, 64); err == nil {
			return v
		}
	}
	if v, ok := SymbolTicks(token); ok {
		return v
	}
	return TicksPerQuarter
}

// Notes returns the playable subset of a timeline, preserving order.
func Notes(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.IsNote() {
			out = append(out, ev)
		}
	}
	return out
}

// LastTick returns the largest tick in the timeline, or 0 when it is empty.
func LastTick(events []Event) Tick {
	var last Tick
	for _, ev := range events {
		if ev.Tick > last {
			last = ev.Tick
		}
	}
	return last
}

// Format writes a timeline back as tablature text with explicit numeric
// deltas. Parsing the result yields the same ticks, kinds and fingerings.
func Format(events []Event) string {
	var b strings.Builder
	var prev Tick
	for i, ev := range events {
		if i > 0 && ev.Tick == prev {
			b.WriteString("=")
		} else {
			b.WriteString(strconv.FormatFloat(ev.Tick-prev, 'f', -1, 64))
		}
		switch ev.Kind {
		case KindText:
			b.WriteString(" TXT")
			if ev.Message != "" {
				b.WriteString(" " + ev.Message)
			}
		case KindPageBreak:
			b.WriteString(" PAGE")
		default:
			b.WriteString(" " + ev.StringID)
			if ev.Fingering != DefaultFingering(ev.StringID) {
				b.WriteString(" " + string(ev.Fingering))
			}
		}
		b.WriteString("\n")
		prev = ev.Tick
	}
	return b.String()
}
