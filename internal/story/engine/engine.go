// Package engine executes a compiled script one event at a time.
//
// An Engine owns its State exclusively and takes no locks; hosts that share
// an engine across goroutines must serialize calls. Every failing call
// leaves State exactly as it was.
package engine

import (
	"errors"
	"fmt"

	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/script"
)

// Engine drives one run of a compiled script.
type Engine struct {
	script *script.Compiled
	state  State
}

// New positions a fresh engine at the start label.
func New(compiled *script.Compiled) (*Engine, error) {
	if compiled == nil {
		return nil, errors.New("engine: compiled script is required")
	}
	return &Engine{
		script: compiled,
		state: State{
			Position: compiled.Start(),
			Flags:    map[string]bool{},
			Vars:     map[string]int64{},
			Visual:   Visual{Characters: []event.Character{}},
		},
	}, nil
}

// Script returns the compiled script being executed.
func (e *Engine) Script() *script.Compiled {
	return e.script
}

// Position returns the current event index.
func (e *Engine) Position() int {
	return e.state.Position
}

// Finished reports whether execution reached the end of the script.
func (e *Engine) Finished() bool {
	return e.state.Position == e.script.Len()
}

// CurrentEvent returns a copy of the event at the current position.
func (e *Engine) CurrentEvent() (event.Event, error) {
	ev, ok := e.script.Event(e.state.Position)
	if !ok {
		return nil, ErrOutOfBounds
	}
	return ev, nil
}

// Step applies the current event and advances. Choices are not stepped;
// they return ErrAwaitingChoice until Choose is called.
func (e *Engine) Step() error {
	if e.Finished() {
		return ErrAlreadyFinished
	}
	ev, err := e.CurrentEvent()
	if err != nil {
		return err
	}

	switch ev := ev.(type) {
	case event.Dialogue:
		e.state.History.Push(Line{Speaker: ev.Speaker, Text: ev.Text})
		e.state.Position++
	case event.Scene:
		e.state.Visual = Visual{
			Background: ev.Background,
			Music:      ev.Music,
			Characters: cloneCharacters(ev.Characters),
		}
		e.state.Position++
	case event.Choice:
		return ErrAwaitingChoice
	case event.Jump:
		e.state.Position = ev.Target
	case event.SetFlag:
		e.state.Flags[ev.Key] = ev.Value
		e.state.Position++
	case event.SetVar:
		e.state.Vars[ev.Key] = ev.Value
		e.state.Position++
	case event.JumpIf:
		ok, err := e.evaluate(ev.Cond)
		if err != nil {
			return err
		}
		if ok {
			e.state.Position = ev.Target
		} else {
			e.state.Position++
		}
	case event.Patch:
		visual, err := applyPatch(e.state.Visual, ev)
		if err != nil {
			return err
		}
		e.state.Visual = visual
		e.state.Position++
	default:
		panic(fmt.Sprintf("engine: unhandled event type %T", ev))
	}
	return nil
}

// Choose picks option index of the current choice.
func (e *Engine) Choose(index int) error {
	if e.Finished() {
		return ErrAlreadyFinished
	}
	ev, err := e.CurrentEvent()
	if err != nil {
		return err
	}
	choice, ok := ev.(event.Choice)
	if !ok {
		return fmt.Errorf("%w: current event is %s", ErrNotAwaitingChoice, ev.Kind())
	}
	if index < 0 || index >= len(choice.Options) {
		return invalidChoice(index, len(choice.Options))
	}
	e.state.Position = choice.Options[index].Target
	return nil
}

// JumpTo moves to a label on behalf of the host.
func (e *Engine) JumpTo(label string) error {
	index, ok := e.script.Label(label)
	if !ok {
		return unknownLabel(label)
	}
	e.state.Position = index
	return nil
}

// VisualState returns a copy of the accumulated visual state.
func (e *Engine) VisualState() Visual {
	return e.state.Visual.Clone()
}

// State returns a deep copy of the engine state.
func (e *Engine) State() State {
	return e.state.Clone()
}

// Restore replaces the state wholesale. The state is validated against
// the script first and left untouched on error.
func (e *Engine) Restore(s State) error {
	if err := s.Validate(e.script.Len()); err != nil {
		return err
	}
	e.state = s.Clone()
	return nil
}

func (e *Engine) evaluate(cond event.Condition) (bool, error) {
	switch c := cond.(type) {
	case event.VarCmp:
		value, ok := e.state.Vars[c.Key]
		if !ok {
			return false, undefinedVariable(c.Key)
		}
		return c.Op.Compare(value, c.Value), nil
	case event.FlagIs:
		return e.state.Flags[c.Key] == c.IsSet, nil
	default:
		panic(fmt.Sprintf("engine: unhandled condition type %T", cond))
	}
}

// applyPatch returns the patched visual without touching current. Adds run
// first, then updates, then removals.
func applyPatch(current Visual, patch event.Patch) (Visual, error) {
	next := current.Clone()
	next.Background = patch.Background.Apply(current.Background)
	next.Music = patch.Music.Apply(current.Music)

	for _, add := range patch.Add {
		replaced := false
		for i := range next.Characters {
			if next.Characters[i].Name == add.Name {
				next.Characters[i] = event.CloneCharacters([]event.Character{add})[0]
				replaced = true
				break
			}
		}
		if !replaced {
			next.Characters = append(next.Characters, event.CloneCharacters([]event.Character{add})[0])
		}
	}
	for _, update := range patch.Update {
		found := false
		for i := range next.Characters {
			if next.Characters[i].Name != update.Name {
				continue
			}
			if update.Expression != nil {
				next.Characters[i].Expression = event.CloneString(update.Expression)
			}
			if update.Position != nil {
				next.Characters[i].Position = event.CloneString(update.Position)
			}
			found = true
			break
		}
		if !found {
			return Visual{}, unknownCharacter(update.Name)
		}
	}
	for _, name := range patch.Remove {
		for i := range next.Characters {
			if next.Characters[i].Name == name {
				next.Characters = append(next.Characters[:i], next.Characters[i+1:]...)
				break
			}
		}
	}
	return next, nil
}
