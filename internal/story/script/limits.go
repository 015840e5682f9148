package script

import (
	"fmt"

	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/policy"
)

func checkPolicy(events []event.Event, labels []Label, p policy.Policy) error {
	if err := policy.CheckLimit(policy.LimitEvents, p.Limits.MaxEvents, len(events)); err != nil {
		return err
	}
	for _, label := range labels {
		if err := p.CheckLabel(label.Name); err != nil {
			return fmt.Errorf("label %q: %w", label.Name, err)
		}
	}
	for i, ev := range events {
		c := checker{policy: p}
		c.event(ev)
		if c.err != nil {
			return atEvent(i, c.err)
		}
	}
	return nil
}

// checker keeps the first policy violation found in an event.
type checker struct {
	policy policy.Policy
	err    error
}

func (c *checker) event(ev event.Event) {
	switch e := ev.(type) {
	case event.Dialogue:
		c.text(e.Speaker)
		c.text(e.Text)
	case event.Scene:
		c.asset(e.Background)
		c.asset(e.Music)
		c.characters(e.Characters)
	case event.Choice:
		c.text(e.Prompt)
		c.limit(policy.LimitChoiceOptions, c.policy.Limits.MaxChoiceOptions, len(e.Options))
		for _, option := range e.Options {
			c.text(option.Text)
		}
	case event.Jump:
	case event.SetFlag:
		c.key(e.Key)
	case event.SetVar:
		c.key(e.Key)
	case event.JumpIf:
		switch cond := e.Cond.(type) {
		case event.VarCmp:
			c.key(cond.Key)
		case event.FlagIs:
			c.key(cond.Key)
		default:
			panic(fmt.Sprintf("script: unhandled condition type %T", e.Cond))
		}
	case event.Patch:
		c.asset(e.Background.Ref())
		c.asset(e.Music.Ref())
		c.characters(e.Add)
		for _, update := range e.Update {
			c.text(update.Name)
			c.optionalText(update.Expression)
			c.optionalText(update.Position)
		}
		for _, name := range e.Remove {
			c.text(name)
		}
	default:
		panic(fmt.Sprintf("script: unhandled event type %T", ev))
	}
}

func (c *checker) text(s string) {
	if c.err == nil {
		c.err = c.policy.CheckText(s)
	}
}

func (c *checker) optionalText(s *string) {
	if s != nil {
		c.text(*s)
	}
}

func (c *checker) key(s string) {
	if c.err == nil {
		c.err = c.policy.CheckLabel(s)
	}
}

func (c *checker) asset(ref *string) {
	if c.err == nil && ref != nil {
		c.err = c.policy.CheckAsset(*ref)
	}
}

func (c *checker) limit(kind string, limit, got int) {
	if c.err == nil {
		c.err = policy.CheckLimit(kind, limit, got)
	}
}

func (c *checker) characters(chars []event.Character) {
	c.limit(policy.LimitCharactersPerScene, c.policy.Limits.MaxCharactersPerScene, len(chars))
	for _, ch := range chars {
		c.text(ch.Name)
		c.optionalText(ch.Expression)
		c.optionalText(ch.Position)
	}
}
