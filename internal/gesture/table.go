package gesture

import "fmt"

func mustPair(left, right string) Pair {
	l, err := ParsePattern(left)
	if err != nil {
		panic(err)
	}
	r, err := ParsePattern(right)
	if err != nil {
		panic(err)
	}
	return Pair{Left: l, Right: r}
}

// vocabulary is the fixed gesture table, in display order.
var vocabulary = []Gesture{
	{Name: "Hi", Pair: mustPair("01000", "01000")},
	{Name: "Ambulance", Pair: mustPair("01000", "00100")},
	{Name: "Fire", Pair: mustPair("01100", "01100")},
	{Name: "Sick", Pair: mustPair("00001", "00001")},
	{Name: "Water", Pair: mustPair("10000", "10000")},
	{Name: "Up", Pair: mustPair("01000", "00000")},
	{Name: "Down", Pair: mustPair("00000", "01000")},
	{Name: "Danger", Pair: mustPair("00001", "01000")},
	{Name: "Stop", Pair: mustPair("00100", "00100")},
	{Name: "Wait", Pair: mustPair("00010", "00010")},
}

var (
	byName = make(map[string]Pair, len(vocabulary))
	byPair = make(map[Pair]string, len(vocabulary))
)

func init() {
	for _, g := range vocabulary {
		if _, dup := byPair[g.Pair]; dup {
			panic(fmt.Sprintf("gesture: duplicate pattern pair %s", g.Pair))
		}
		byName[g.Name] = g.Pair
		byPair[g.Pair] = g.Name
	}
}

// Table returns a copy of the gesture vocabulary in display order.
func Table() []Gesture {
	out := make([]Gesture, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Names returns the gesture names in display order.
func Names() []string {
	names := make([]string, len(vocabulary))
	for i, g := range vocabulary {
		names[i] = g.Name
	}
	return names
}

// Encode returns the pattern pair for a gesture name.
func Encode(name string) (Pair, error) {
	pair, ok := byName[name]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %q", ErrUnknownGesture, name)
	}
	return pair, nil
}

// Decode returns the gesture name for a pattern pair.
func Decode(pair Pair) (string, error) {
	name, ok := byPair[pair]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGesture, pair)
	}
	return name, nil
}
