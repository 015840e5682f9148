package repro

import (
	"fmt"
	"strconv"

	"github.com/louisbranch/talespin/internal/story/event"
)

// Signature is a compact, stable description of an event used to compare
// traces across runs.
func Signature(ev event.Event) string {
	switch e := ev.(type) {
	case event.Dialogue:
		return fmt.Sprintf("dialogue|%s|%s", e.Speaker, e.Text)
	case event.Choice:
		return fmt.Sprintf("choice|%s|%d", e.Prompt, len(e.Options))
	case event.Scene:
		return fmt.Sprintf("scene|bg=%s|music=%s|chars=%d", quoteOptional(e.Background), quoteOptional(e.Music), len(e.Characters))
	case event.Jump:
		return "jump"
	case event.SetFlag:
		return "set_flag|" + strconv.FormatBool(e.Value)
	case event.SetVar:
		return "set_var|" + strconv.FormatInt(e.Value, 10)
	case event.JumpIf:
		return "jump_if|" + conditionSignature(e.Cond)
	case event.Patch:
		return fmt.Sprintf("patch|bg=%s|music=%s|add=%d|upd=%d|rm=%d",
			optionalSignature(e.Background), optionalSignature(e.Music), len(e.Add), len(e.Update), len(e.Remove))
	default:
		panic(fmt.Sprintf("repro: unhandled event type %T", ev))
	}
}

func conditionSignature(c event.Condition) string {
	switch cond := c.(type) {
	case event.FlagIs:
		return "flag|" + strconv.FormatBool(cond.IsSet)
	case event.VarCmp:
		return fmt.Sprintf("var|%s|%d", cond.Op, cond.Value)
	default:
		panic(fmt.Sprintf("repro: unhandled condition type %T", c))
	}
}

func optionalSignature(o event.Optional) string {
	switch o.Presence {
	case event.Present:
		return strconv.Quote(o.Value)
	case event.Cleared:
		return "null"
	default:
		return "none"
	}
}
