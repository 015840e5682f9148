package event

import "fmt"

// Kind names an event variant in scripts, traces and logs.
type Kind string

const (
	KindDialogue Kind = "dialogue"
	KindScene    Kind = "scene"
	KindChoice   Kind = "choice"
	KindJump     Kind = "jump"
	KindSetFlag  Kind = "set_flag"
	KindSetVar   Kind = "set_var"
	KindJumpIf   Kind = "jump_if"
	KindPatch    Kind = "patch"
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{KindDialogue, KindScene, KindChoice, KindJump, KindSetFlag, KindSetVar, KindJumpIf, KindPatch}

// Event is one executable unit of a compiled script.
type Event interface {
	Kind() Kind
	sealed()
}

// Dialogue is a spoken or narrated line.
type Dialogue struct {
	Speaker string
	Text    string
}

// Scene replaces the whole visual state.
type Scene struct {
	Background *string
	Music      *string
	Characters []Character
}

// Choice stops the story until the player picks an option.
type Choice struct {
	Prompt  string
	Options []Option
}

// Option is one branch of a Choice. Target is a resolved event index.
type Option struct {
	Text   string
	Target int
}

// Jump moves to Target unconditionally.
type Jump struct {
	Target int
}

// SetFlag assigns a boolean flag.
type SetFlag struct {
	Key   string
	Value bool
}

// SetVar assigns an integer variable.
type SetVar struct {
	Key   string
	Value int64
}

// JumpIf moves to Target when Cond holds and falls through otherwise.
type JumpIf struct {
	Cond   Condition
	Target int
}

// Patch is an incremental change to the visual state.
type Patch struct {
	Background Optional
	Music      Optional
	Add        []Character
	Update     []CharacterUpdate
	Remove     []string
}

// Character is a named sprite placed on stage.
type Character struct {
	Name       string
	Expression *string
	Position   *string
}

// CharacterUpdate changes the fields of an on-stage character. Nil fields
// are left untouched.
type CharacterUpdate struct {
	Name       string
	Expression *string
	Position   *string
}

func (Dialogue) Kind() Kind { return KindDialogue }
func (Scene) Kind() Kind    { return KindScene }
func (Choice) Kind() Kind   { return KindChoice }
func (Jump) Kind() Kind     { return KindJump }
func (SetFlag) Kind() Kind  { return KindSetFlag }
func (SetVar) Kind() Kind   { return KindSetVar }
func (JumpIf) Kind() Kind   { return KindJumpIf }
func (Patch) Kind() Kind    { return KindPatch }

func (Dialogue) sealed() {}
func (Scene) sealed()    {}
func (Choice) sealed()   {}
func (Jump) sealed()     {}
func (SetFlag) sealed()  {}
func (SetVar) sealed()   {}
func (JumpIf) sealed()   {}
func (Patch) sealed()    {}

// Targets returns the event indices ev can transfer control to, excluding
// the implicit fall-through.
func Targets(ev Event) []int {
	switch e := ev.(type) {
	case Jump:
		return []int{e.Target}
	case JumpIf:
		return []int{e.Target}
	case Choice:
		out := make([]int, 0, len(e.Options))
		for _, option := range e.Options {
			out = append(out, option.Target)
		}
		return out
	case Dialogue, Scene, SetFlag, SetVar, Patch:
		return nil
	default:
		panic(fmt.Sprintf("event: unhandled event type %T", ev))
	}
}

// Clone returns a deep copy of ev so callers cannot alias compiled data.
func Clone(ev Event) Event {
	switch e := ev.(type) {
	case Dialogue, Jump, SetFlag, SetVar, JumpIf:
		return e
	case Scene:
		return Scene{
			Background: CloneString(e.Background),
			Music:      CloneString(e.Music),
			Characters: CloneCharacters(e.Characters),
		}
	case Choice:
		return Choice{Prompt: e.Prompt, Options: append([]Option(nil), e.Options...)}
	case Patch:
		updates := make([]CharacterUpdate, len(e.Update))
		for i, update := range e.Update {
			updates[i] = CharacterUpdate{
				Name:       update.Name,
				Expression: CloneString(update.Expression),
				Position:   CloneString(update.Position),
			}
		}
		return Patch{
			Background: e.Background,
			Music:      e.Music,
			Add:        CloneCharacters(e.Add),
			Update:     updates,
			Remove:     append([]string(nil), e.Remove...),
		}
	default:
		panic(fmt.Sprintf("event: unhandled event type %T", ev))
	}
}

// CloneCharacters deep-copies a character list. Nil stays nil.
func CloneCharacters(in []Character) []Character {
	if in == nil {
		return nil
	}
	out := make([]Character, len(in))
	for i, c := range in {
		out[i] = Character{Name: c.Name, Expression: CloneString(c.Expression), Position: CloneString(c.Position)}
	}
	return out
}

// CloneString copies an optional string.
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// String returns a pointer to s, for building optional fields.
func String(s string) *string {
	return &s
}
