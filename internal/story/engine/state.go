package engine

import (
	"github.com/louisbranch/talespin/internal/story/event"
)

// Visual is the accumulated presentation state.
type Visual struct {
	Background *string
	Music      *string
	Characters []event.Character
}

// Clone returns a deep copy.
func (v Visual) Clone() Visual {
	return Visual{
		Background: event.CloneString(v.Background),
		Music:      event.CloneString(v.Music),
		Characters: cloneCharacters(v.Characters),
	}
}

// Character looks up an on-stage character by name.
func (v Visual) Character(name string) (event.Character, bool) {
	for _, c := range v.Characters {
		if c.Name == name {
			return c, true
		}
	}
	return event.Character{}, false
}

// State is the mutable run-time state of one engine. Position equal to the
// script length means the story is finished.
type State struct {
	Position int
	Flags    map[string]bool
	Vars     map[string]int64
	Visual   Visual
	History  History
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		Position: s.Position,
		Flags:    make(map[string]bool, len(s.Flags)),
		Vars:     make(map[string]int64, len(s.Vars)),
		Visual:   s.Visual.Clone(),
		History:  s.History,
	}
	for k, v := range s.Flags {
		out.Flags[k] = v
	}
	for k, v := range s.Vars {
		out.Vars[k] = v
	}
	return out
}

// Equal reports field-for-field equality, treating nil and empty
// collections alike.
func (s State) Equal(other State) bool {
	if s.Position != other.Position || len(s.Flags) != len(other.Flags) || len(s.Vars) != len(other.Vars) {
		return false
	}
	for k, v := range s.Flags {
		if ov, ok := other.Flags[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range s.Vars {
		if ov, ok := other.Vars[k]; !ok || ov != v {
			return false
		}
	}
	if !equalString(s.Visual.Background, other.Visual.Background) || !equalString(s.Visual.Music, other.Visual.Music) {
		return false
	}
	if len(s.Visual.Characters) != len(other.Visual.Characters) {
		return false
	}
	for i, c := range s.Visual.Characters {
		oc := other.Visual.Characters[i]
		if c.Name != oc.Name || !equalString(c.Expression, oc.Expression) || !equalString(c.Position, oc.Position) {
			return false
		}
	}
	return s.History.Equal(other.History)
}

// Validate checks the structural invariants of s against a script with
// length events.
func (s State) Validate(length int) error {
	if s.Position < 0 || s.Position > length {
		return corrupt("position %d outside [0, %d]", s.Position, length)
	}
	seen := make(map[string]struct{}, len(s.Visual.Characters))
	for _, c := range s.Visual.Characters {
		if c.Name == "" {
			return corrupt("character without name")
		}
		if _, dup := seen[c.Name]; dup {
			return corrupt("duplicate character %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func cloneCharacters(in []event.Character) []event.Character {
	out := event.CloneCharacters(in)
	if out == nil {
		out = []event.Character{}
	}
	return out
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
