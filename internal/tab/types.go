package tab

import "fmt"

type Kind int

const (
	KindNote Kind = iota + 1
	KindText
	KindPageBreak
)

func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindText:
		return "text"
	case KindPageBreak:
		return "page"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "note":
		*k = KindNote
	case "text":
		*k = KindText
	case "page":
		*k = KindPageBreak
	default:
		return fmt.Errorf("unknown event kind %q", b)
	}
	return nil
}

// Fingering is the articulation class of a note: thumb (P) or index (I).
type Fingering string

const (
	FingerThumb Fingering = "P"
	FingerIndex Fingering = "I"
)

// Tick is a position on the timeline; TicksPerQuarter ticks make one beat.
type Tick = float64

// Event is one entry of the parsed timeline. Events are never mutated after Parse returns.
type Event struct {
	ID        string    `json:"id"`
	Tick      Tick      `json:"tick"`
	Kind      Kind      `json:"kind"`
	StringID  string    `json:"string,omitempty"`
	Fingering Fingering `json:"fingering,omitempty"`
	Message   string    `json:"message,omitempty"`
	Line      int       `json:"line"`
}

func (e Event) IsNote() bool { return e.Kind == KindNote }
