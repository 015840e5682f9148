package scenario

import (
	"os"
	"path/filepath"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/save"
	"github.com/louisbranch/talespin/internal/story/script"
)

func (r *Runner) runStep(state *scenarioState, step Step) error {
	switch step.Kind {
	case "script":
		return r.runScript(state, step.Args)
	case "script_json":
		return r.loadScript(state, []byte(requiredString(step.Args, "source")))
	}
	if state.engine == nil {
		return r.failf("no script loaded")
	}

	switch step.Kind {
	case "step":
		for i := 0; i < optionalInt(step.Args, "count", 1); i++ {
			if err := state.engine.Step(); err != nil {
				return r.failf("step %d: %w", i+1, err)
			}
		}
		return nil
	case "choose":
		index, _ := readInt(step.Args, "index")
		return state.engine.Choose(index)
	case "jump":
		return state.engine.JumpTo(requiredString(step.Args, "label"))
	case "save":
		return r.runSave(state, step.Args)
	case "load":
		return r.runLoad(state, step.Args)
	case "run_to_end":
		return r.runToEnd(state, step.Args)
	case "expect_position":
		want, _ := readInt(step.Args, "position")
		if got := state.engine.Position(); got != want {
			return r.assertf("position = %d, want %d", got, want)
		}
		return nil
	case "expect_kind":
		return r.expectKind(state, requiredString(step.Args, "kind"))
	case "expect_text", "expect_speaker":
		return r.expectDialogue(state, step)
	case "expect_var":
		key := requiredString(step.Args, "key")
		want, _ := readInt(step.Args, "value")
		got, ok := state.engine.State().Vars[key]
		if !ok {
			return r.assertf("var %s is undefined, want %d", key, want)
		}
		if got != int64(want) {
			return r.assertf("var %s = %d, want %d", key, got, want)
		}
		return nil
	case "expect_flag":
		key := requiredString(step.Args, "key")
		want, _ := readBool(step.Args, "value")
		if got := state.engine.State().Flags[key]; got != want {
			return r.assertf("flag %s = %t, want %t", key, got, want)
		}
		return nil
	case "expect_background":
		return r.expectVisualField(step.Args, "background", state.engine.VisualState().Background)
	case "expect_music":
		return r.expectVisualField(step.Args, "music", state.engine.VisualState().Music)
	case "expect_character":
		return r.expectCharacter(state, step.Args)
	case "expect_no_character":
		name := requiredString(step.Args, "name")
		if _, ok := state.engine.VisualState().Character(name); ok {
			return r.assertf("character %s is on stage", name)
		}
		return nil
	case "expect_history":
		return r.expectHistory(state, step.Args)
	case "expect_finished":
		want, _ := readBool(step.Args, "finished")
		if got := state.engine.Finished(); got != want {
			return r.assertf("finished = %t, want %t", got, want)
		}
		return nil
	case "expect_error":
		return r.expectError(state, step.Args)
	default:
		return r.failf("unknown step kind %q", step.Kind)
	}
}

func (r *Runner) runScript(state *scenarioState, args map[string]any) error {
	path := requiredString(args, "path")
	if path == "" {
		return r.failf("script path is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(state.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return r.failf("read script: %w", err)
	}
	return r.loadScript(state, data)
}

func (r *Runner) loadScript(state *scenarioState, data []byte) error {
	compiled, err := script.Compile(data, r.policy)
	if err != nil {
		return r.failf("compile script: %w", err)
	}
	e, err := engine.New(compiled)
	if err != nil {
		return r.failf("start engine: %w", err)
	}
	state.compiled = compiled
	state.engine = e
	r.logf("script %s loaded (%d events)", compiled.ID(), compiled.Len())
	return nil
}

func (r *Runner) runSave(state *scenarioState, args map[string]any) error {
	data, err := save.Save(state.engine)
	if err != nil {
		return r.failf("save: %w", err)
	}
	state.saves[requiredString(args, "name")] = data
	return nil
}

func (r *Runner) runLoad(state *scenarioState, args map[string]any) error {
	name := requiredString(args, "name")
	data, ok := state.saves[name]
	if !ok {
		return r.failf("no save named %q", name)
	}
	return save.Restore(state.engine, data)
}

// runToEnd steps until the story finishes, taking route entries at choices
// (0 when the route runs out, clamped to the last option).
func (r *Runner) runToEnd(state *scenarioState, args map[string]any) error {
	route, err := readIntSlice(args, "route")
	if err != nil {
		return r.failf("%w", err)
	}
	maxSteps := optionalInt(args, "max_steps", DefaultMaxSteps)
	cursor := 0
	for steps := 0; !state.engine.Finished(); steps++ {
		if steps >= maxSteps {
			return r.failf("story did not finish within %d steps", maxSteps)
		}
		ev, err := state.engine.CurrentEvent()
		if err != nil {
			return err
		}
		choice, ok := ev.(event.Choice)
		if !ok {
			if err := state.engine.Step(); err != nil {
				return err
			}
			continue
		}
		selected := 0
		if cursor < len(route) {
			selected = route[cursor]
		}
		cursor++
		selected = min(max(selected, 0), len(choice.Options)-1)
		if err := state.engine.Choose(selected); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) expectKind(state *scenarioState, want string) error {
	if state.engine.Finished() {
		return r.assertf("story finished, want %s", want)
	}
	ev, err := state.engine.CurrentEvent()
	if err != nil {
		return err
	}
	if got := string(ev.Kind()); got != want {
		return r.assertf("event kind = %s, want %s", got, want)
	}
	return nil
}

func (r *Runner) expectDialogue(state *scenarioState, step Step) error {
	if state.engine.Finished() {
		return r.assertf("story finished, want a dialogue")
	}
	ev, err := state.engine.CurrentEvent()
	if err != nil {
		return err
	}
	dialogue, ok := ev.(event.Dialogue)
	if !ok {
		return r.assertf("event kind = %s, want dialogue", ev.Kind())
	}
	if step.Kind == "expect_speaker" {
		if want := requiredString(step.Args, "speaker"); dialogue.Speaker != want {
			return r.assertf("speaker = %q, want %q", dialogue.Speaker, want)
		}
		return nil
	}
	if want := requiredString(step.Args, "text"); dialogue.Text != want {
		return r.assertf("text = %q, want %q", dialogue.Text, want)
	}
	return nil
}

func (r *Runner) expectVisualField(args map[string]any, field string, got *string) error {
	want, err := readOptionalString(args, "value")
	if err != nil {
		return r.failf("%w", err)
	}
	if describeOptional(got) != describeOptional(want) {
		return r.assertf("%s = %s, want %s", field, describeOptional(got), describeOptional(want))
	}
	return nil
}

func (r *Runner) expectCharacter(state *scenarioState, args map[string]any) error {
	name := requiredString(args, "name")
	character, ok := state.engine.VisualState().Character(name)
	if !ok {
		return r.assertf("character %s is not on stage", name)
	}
	for _, field := range []struct {
		key string
		got *string
	}{
		{"expression", character.Expression},
		{"position", character.Position},
	} {
		if _, present := args[field.key]; !present {
			continue
		}
		want, err := readOptionalString(args, field.key)
		if err != nil {
			return r.failf("%w", err)
		}
		if describeOptional(field.got) != describeOptional(want) {
			return r.assertf("character %s %s = %s, want %s", name, field.key, describeOptional(field.got), describeOptional(want))
		}
	}
	return nil
}

func (r *Runner) expectHistory(state *scenarioState, args map[string]any) error {
	history := state.engine.State().History
	want, _ := readInt(args, "count")
	if history.Len() != want {
		return r.assertf("history length = %d, want %d", history.Len(), want)
	}
	last, ok := args["last"].(string)
	if !ok {
		return nil
	}
	line, _ := history.Last()
	got := line.Text
	if line.Speaker != "" {
		got = line.Speaker + ": " + line.Text
	}
	if got != last {
		return r.assertf("last history line = %q, want %q", got, last)
	}
	return nil
}

// expectError runs the action and requires it to fail with code and leave
// the state untouched.
func (r *Runner) expectError(state *scenarioState, args map[string]any) error {
	code := apperrors.Code(requiredString(args, "code"))
	action := requiredString(args, "action")
	before := state.engine.State()

	var err error
	switch action {
	case "step":
		err = state.engine.Step()
	case "choose":
		index, _ := readInt(args, "arg")
		err = state.engine.Choose(index)
	case "jump":
		err = state.engine.JumpTo(requiredString(args, "arg"))
	default:
		return r.failf("unknown action %q", action)
	}
	if err == nil {
		return r.assertf("%s succeeded, want %s", action, code)
	}
	if !apperrors.HasCode(err, code) {
		return r.assertf("%s error = %v, want %s", action, err, code)
	}
	if !state.engine.State().Equal(before) {
		return r.assertf("%s failed with %s but changed the state", action, code)
	}
	return nil
}
