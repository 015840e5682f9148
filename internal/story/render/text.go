// Package render formats story events as plain text.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/message"

	i18ncatalog "github.com/louisbranch/talespin/internal/platform/i18n/catalog"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/event"
)

// TextRenderer is the reference engine.Renderer. Labels are looked up in
// the player catalog through Printer.
type TextRenderer struct {
	Printer *message.Printer
}

// NewTextRenderer returns a renderer for the closest catalog locale.
func NewTextRenderer(locale string) TextRenderer {
	return TextRenderer{Printer: i18ncatalog.Default().Printer(locale)}
}

// Render implements engine.Renderer.
func (r TextRenderer) Render(ev event.Event, v engine.View) (string, error) {
	p := r.printer()
	switch e := ev.(type) {
	case event.Dialogue:
		if e.Speaker == "" {
			return e.Text, nil
		}
		return e.Speaker + ": " + e.Text, nil
	case event.Scene:
		return r.scene(p, e.Background, e.Music, e.Characters), nil
	case event.Choice:
		var b strings.Builder
		b.WriteString(e.Prompt)
		for i, option := range e.Options {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(p.Sprintf("player.choice_option", i+1, option.Text))
		}
		return b.String(), nil
	case event.Jump:
		return p.Sprintf("player.jump", e.Target), nil
	case event.SetFlag:
		return p.Sprintf("player.set_flag", e.Key, e.Value), nil
	case event.SetVar:
		return p.Sprintf("player.set_var", e.Key, e.Value), nil
	case event.JumpIf:
		return p.Sprintf("player.jump_if", e.Target, event.DescribeCondition(e.Cond)), nil
	case event.Patch:
		return p.Sprintf("player.patch", len(e.Add), len(e.Update), len(e.Remove)), nil
	default:
		return "", fmt.Errorf("render: unhandled event type %T", ev)
	}
}

// Visual describes a visual state the way a scene event is described.
func (r TextRenderer) Visual(v engine.Visual) string {
	return r.scene(r.printer(), v.Background, v.Music, v.Characters)
}

// Finished returns the closing line.
func (r TextRenderer) Finished() string {
	return r.printer().Sprintf("player.finished")
}

func (r TextRenderer) scene(p *message.Printer, background, music *string, characters []event.Character) string {
	var lines []string
	if background != nil {
		lines = append(lines, p.Sprintf("player.background", *background))
	}
	if music != nil {
		lines = append(lines, p.Sprintf("player.music", *music))
	}
	if len(characters) > 0 {
		names := make([]string, len(characters))
		for i, c := range characters {
			names[i] = DescribeCharacter(c)
		}
		lines = append(lines, p.Sprintf("player.characters", strings.Join(names, ", ")))
	}
	if len(lines) == 0 {
		return p.Sprintf("player.scene_updated")
	}
	return strings.Join(lines, "\n")
}

func (r TextRenderer) printer() *message.Printer {
	if r.Printer != nil {
		return r.Printer
	}
	return i18ncatalog.Default().Printer(i18ncatalog.BaseLocale)
}

// DescribeCharacter renders "name (expression) @ position", omitting
// absent parts.
func DescribeCharacter(c event.Character) string {
	out := c.Name
	if c.Expression != nil {
		out += " (" + *c.Expression + ")"
	}
	if c.Position != nil {
		out += " @ " + *c.Position
	}
	return out
}
