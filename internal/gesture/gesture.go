package gesture

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Fingers is the number of bits in a hand pattern.
const Fingers = 5

var (
	// ErrUnknownGesture is returned when a name or pattern pair is not in the table.
	ErrUnknownGesture = errors.New("gesture: unknown gesture")

	// ErrInvalidPattern is returned when a pattern is not exactly five 0/1 characters.
	ErrInvalidPattern = errors.New("gesture: invalid pattern")
)

// Pattern is a 5-bit finger vector. Bit 4 is the thumb, bit 0 the pinky,
// so the textual form reads thumb-first.
type Pattern uint8

// ParsePattern parses a textual pattern such as "01100".
func ParsePattern(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	if len(s) != Fingers {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPattern, s)
	}
	var p Pattern
	for _, ch := range s {
		p <<= 1
		switch ch {
		case '1':
			p |= 1
		case '0':
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidPattern, s)
		}
	}
	return p, nil
}

// String renders the pattern thumb-first.
func (p Pattern) String() string {
	var b strings.Builder
	for i := Fingers - 1; i >= 0; i-- {
		if p&(1<<i) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Raised returns the number of raised fingers.
func (p Pattern) Raised() int {
	return bits.OnesCount8(uint8(p & 0x1f))
}

// MarshalText implements encoding.TextMarshaler.
func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pattern) UnmarshalText(text []byte) error {
	parsed, err := ParsePattern(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Pair is the left and right hand patterns of a gesture.
type Pair struct {
	Left  Pattern `json:"left"`
	Right Pattern `json:"right"`
}

// String renders the pair as "left,right".
func (p Pair) String() string {
	return p.Left.String() + "," + p.Right.String()
}

// ParsePair parses "left,right" (whitespace around either side is ignored).
// This is the payload format vision helpers write to their device handle.
func ParsePair(s string) (Pair, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Pair{}, fmt.Errorf("%w: %q", ErrInvalidPattern, s)
	}
	l, err := ParsePattern(left)
	if err != nil {
		return Pair{}, err
	}
	r, err := ParsePattern(right)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Left: l, Right: r}, nil
}

// Gesture is a named entry in the vocabulary.
type Gesture struct {
	Name string `json:"name"`
	Pair
}

// Event is a recognised gesture.
type Event struct {
	Name      string    `json:"name"`
	Left      Pattern   `json:"left"`
	Right     Pattern   `json:"right"`
	Timestamp time.Time `json:"timestamp"`
	Source    hal.Tier  `json:"source"`
}

// NewEvent builds an event for a known gesture name.
func NewEvent(name string, at time.Time, source hal.Tier) (Event, error) {
	pair, err := Encode(name)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Left: pair.Left, Right: pair.Right, Timestamp: at, Source: source}, nil
}
