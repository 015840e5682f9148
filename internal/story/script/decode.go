package script

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/louisbranch/talespin/internal/story/event"
)

// targetRef is a jump target before resolution: a label name in source
// scripts, or a direct index in compiled payloads.
type targetRef struct {
	name  string
	index int
	named bool
}

func (r targetRef) String() string {
	if r.named {
		return strconv.Quote(r.name)
	}
	return strconv.Itoa(r.index)
}

// pending is a decoded event whose targets are still symbolic. targets
// follows the order of event.Targets.
type pending struct {
	ev      event.Event
	targets []targetRef
}

type characterWire struct {
	Name       *string `json:"name"`
	Expression *string `json:"expression"`
	Position   *string `json:"position"`
}

type optionWire struct {
	Text   *string         `json:"text"`
	Target json.RawMessage `json:"target"`
}

type conditionWire struct {
	Kind  *string `json:"kind"`
	Key   *string `json:"key"`
	Op    *string `json:"op"`
	Value *int64  `json:"value"`
	IsSet *bool   `json:"is_set"`
}

func decodeEvent(index int, data json.RawMessage) (pending, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return pending{}, malformed(index, "event must be an object")
	}
	if head.Type == nil {
		return pending{}, malformed(index, "type is required")
	}

	switch kind := event.Kind(*head.Type); kind {
	case event.KindDialogue:
		return decodeDialogue(index, data)
	case event.KindScene:
		return decodeScene(index, data)
	case event.KindChoice:
		return decodeChoice(index, data)
	case event.KindJump:
		return decodeJump(index, data)
	case event.KindSetFlag:
		return decodeSetFlag(index, data)
	case event.KindSetVar:
		return decodeSetVar(index, data)
	case event.KindJumpIf:
		return decodeJumpIf(index, data)
	case event.KindPatch:
		return decodePatch(index, data)
	default:
		return pending{}, malformed(index, "unknown event type %q", *head.Type)
	}
}

func decodeFields(index int, kind event.Kind, data json.RawMessage, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return malformed(index, "%s: %v", kind, err)
	}
	return nil
}

func decodeDialogue(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Speaker *string `json:"speaker"`
		Text    *string `json:"text"`
	}
	if err := decodeFields(index, event.KindDialogue, data, &w); err != nil {
		return pending{}, err
	}
	if w.Text == nil {
		return pending{}, malformed(index, "dialogue.text is required")
	}
	ev := event.Dialogue{Text: *w.Text}
	if w.Speaker != nil {
		ev.Speaker = *w.Speaker
	}
	return pending{ev: ev}, nil
}

func decodeScene(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Background *string         `json:"background"`
		Music      *string         `json:"music"`
		Characters []characterWire `json:"characters"`
	}
	if err := decodeFields(index, event.KindScene, data, &w); err != nil {
		return pending{}, err
	}
	characters, err := buildCharacters(index, "scene.characters", w.Characters)
	if err != nil {
		return pending{}, err
	}
	seen := make(map[string]struct{}, len(characters))
	for _, c := range characters {
		if _, dup := seen[c.Name]; dup {
			return pending{}, malformed(index, "scene.characters: duplicate character %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return pending{ev: event.Scene{Background: w.Background, Music: w.Music, Characters: characters}}, nil
}

func decodeChoice(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Prompt  *string       `json:"prompt"`
		Options *[]optionWire `json:"options"`
	}
	if err := decodeFields(index, event.KindChoice, data, &w); err != nil {
		return pending{}, err
	}
	if w.Options == nil {
		return pending{}, malformed(index, "choice.options is required")
	}
	ev := event.Choice{Options: make([]event.Option, 0, len(*w.Options))}
	if w.Prompt != nil {
		ev.Prompt = *w.Prompt
	}
	targets := make([]targetRef, 0, len(*w.Options))
	for i, option := range *w.Options {
		if option.Text == nil {
			return pending{}, malformed(index, "choice.options[%d].text is required", i)
		}
		ref, err := parseTarget(index, "choice.options["+strconv.Itoa(i)+"].target", option.Target)
		if err != nil {
			return pending{}, err
		}
		ev.Options = append(ev.Options, event.Option{Text: *option.Text})
		targets = append(targets, ref)
	}
	return pending{ev: ev, targets: targets}, nil
}

func decodeJump(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Target json.RawMessage `json:"target"`
	}
	if err := decodeFields(index, event.KindJump, data, &w); err != nil {
		return pending{}, err
	}
	ref, err := parseTarget(index, "jump.target", w.Target)
	if err != nil {
		return pending{}, err
	}
	return pending{ev: event.Jump{}, targets: []targetRef{ref}}, nil
}

func decodeSetFlag(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Key   *string `json:"key"`
		Value *bool   `json:"value"`
	}
	if err := decodeFields(index, event.KindSetFlag, data, &w); err != nil {
		return pending{}, err
	}
	if w.Key == nil || *w.Key == "" {
		return pending{}, malformed(index, "set_flag.key is required")
	}
	if w.Value == nil {
		return pending{}, malformed(index, "set_flag.value is required")
	}
	return pending{ev: event.SetFlag{Key: *w.Key, Value: *w.Value}}, nil
}

func decodeSetVar(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Key   *string `json:"key"`
		Value *int64  `json:"value"`
	}
	if err := decodeFields(index, event.KindSetVar, data, &w); err != nil {
		return pending{}, err
	}
	if w.Key == nil || *w.Key == "" {
		return pending{}, malformed(index, "set_var.key is required")
	}
	if w.Value == nil {
		return pending{}, malformed(index, "set_var.value is required")
	}
	return pending{ev: event.SetVar{Key: *w.Key, Value: *w.Value}}, nil
}

func decodeJumpIf(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Cond   *conditionWire  `json:"cond"`
		Target json.RawMessage `json:"target"`
	}
	if err := decodeFields(index, event.KindJumpIf, data, &w); err != nil {
		return pending{}, err
	}
	if w.Cond == nil {
		return pending{}, malformed(index, "jump_if.cond is required")
	}
	cond, err := buildCondition(index, *w.Cond)
	if err != nil {
		return pending{}, err
	}
	ref, err := parseTarget(index, "jump_if.target", w.Target)
	if err != nil {
		return pending{}, err
	}
	return pending{ev: event.JumpIf{Cond: cond}, targets: []targetRef{ref}}, nil
}

func buildCondition(index int, w conditionWire) (event.Condition, error) {
	if w.Kind == nil {
		return nil, malformed(index, "jump_if.cond.kind is required")
	}
	if w.Key == nil || *w.Key == "" {
		return nil, malformed(index, "jump_if.cond.key is required")
	}
	switch *w.Kind {
	case "var_cmp":
		if w.Op == nil {
			return nil, malformed(index, "jump_if.cond.op is required")
		}
		op, ok := event.ParseOp(*w.Op)
		if !ok {
			return nil, malformed(index, "jump_if.cond.op %q is not a comparison", *w.Op)
		}
		if w.Value == nil {
			return nil, malformed(index, "jump_if.cond.value is required")
		}
		return event.VarCmp{Key: *w.Key, Op: op, Value: *w.Value}, nil
	case "flag":
		isSet := true
		if w.IsSet != nil {
			isSet = *w.IsSet
		}
		return event.FlagIs{Key: *w.Key, IsSet: isSet}, nil
	default:
		return nil, malformed(index, "jump_if.cond.kind %q is unknown", *w.Kind)
	}
}

func decodePatch(index int, data json.RawMessage) (pending, error) {
	var w struct {
		Add    []characterWire `json:"add"`
		Update []characterWire `json:"update"`
		Remove []string        `json:"remove"`
	}
	if err := decodeFields(index, event.KindPatch, data, &w); err != nil {
		return pending{}, err
	}
	var fields map[string]json.RawMessage
	if err := decodeFields(index, event.KindPatch, data, &fields); err != nil {
		return pending{}, err
	}
	background, err := parseOptional(index, "patch.background", fields)
	if err != nil {
		return pending{}, err
	}
	music, err := parseOptional(index, "patch.music", fields)
	if err != nil {
		return pending{}, err
	}
	add, err := buildCharacters(index, "patch.add", w.Add)
	if err != nil {
		return pending{}, err
	}
	updates := make([]event.CharacterUpdate, 0, len(w.Update))
	for i, u := range w.Update {
		if u.Name == nil || *u.Name == "" {
			return pending{}, malformed(index, "patch.update[%d].name is required", i)
		}
		updates = append(updates, event.CharacterUpdate{Name: *u.Name, Expression: u.Expression, Position: u.Position})
	}
	for i, name := range w.Remove {
		if name == "" {
			return pending{}, malformed(index, "patch.remove[%d] is empty", i)
		}
	}
	return pending{ev: event.Patch{
		Background: background,
		Music:      music,
		Add:        add,
		Update:     updates,
		Remove:     w.Remove,
	}}, nil
}

func buildCharacters(index int, field string, in []characterWire) ([]event.Character, error) {
	out := make([]event.Character, 0, len(in))
	for i, w := range in {
		if w.Name == nil || *w.Name == "" {
			return nil, malformed(index, "%s[%d].name is required", field, i)
		}
		out = append(out, event.Character{Name: *w.Name, Expression: w.Expression, Position: w.Position})
	}
	return out, nil
}

func parseOptional(index int, field string, fields map[string]json.RawMessage) (event.Optional, error) {
	key := field[len("patch."):]
	data, ok := fields[key]
	if !ok {
		return event.Optional{}, nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return event.Clear(), nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return event.Optional{}, malformed(index, "%s must be a string or null", field)
	}
	return event.Set(value), nil
}

func parseTarget(index int, field string, data json.RawMessage) (targetRef, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return targetRef{}, malformed(index, "%s is required", field)
	}
	if trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return targetRef{}, malformed(index, "%s: %v", field, err)
		}
		return targetRef{name: name, named: true}, nil
	}
	var target int
	if err := json.Unmarshal(trimmed, &target); err != nil {
		return targetRef{}, malformed(index, "%s must be a label name or event index", field)
	}
	return targetRef{index: target}, nil
}
