// Package play hosts an interactive story session: one engine, its save
// slots and presentation, serialized behind a mutex so transports can share
// it.
package play

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/talespin/internal/platform/otel"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/localization"
	"github.com/louisbranch/talespin/internal/story/save"
	"github.com/louisbranch/talespin/internal/story/script"
	"github.com/louisbranch/talespin/internal/story/storage"
)

// TracerName names the tracer session spans are recorded under.
const TracerName = "talespin/play"

// ErrNoSlotStore is returned by slot operations on a session without a store.
var ErrNoSlotStore = errors.New("no save slot store configured")

// Options configures a Session. Every field is optional.
type Options struct {
	Store        storage.SlotStore
	Keys         *save.Keyring
	Renderer     engine.Renderer
	Localization *localization.Catalog
	Locale       string
	Logger       *log.Logger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Frame is what a player sees at the current position.
type Frame struct {
	Position int           `json:"position"`
	Kind     event.Kind    `json:"kind,omitempty"`
	Speaker  string        `json:"speaker,omitempty"`
	Text     string        `json:"text,omitempty"`
	Options  []string      `json:"options,omitempty"`
	Rendered string        `json:"rendered,omitempty"`
	Finished bool          `json:"finished"`
	Visual   engine.Visual `json:"-"`
}

// Session drives one engine for a player.
type Session struct {
	mu     sync.Mutex
	engine *engine.Engine
	opts   Options
	tracer trace.Tracer
	logger *log.Logger
}

// NewSession starts compiled at its start label.
func NewSession(compiled *script.Compiled, opts Options) (*Session, error) {
	e, err := engine.New(compiled)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tracer := otel.Tracer(TracerName)
	if opts.TracerProvider != nil {
		tracer = opts.TracerProvider.Tracer(TracerName)
	}
	return &Session{
		engine: e,
		opts:   opts,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Script returns the compiled script the session plays.
func (s *Session) Script() *script.Compiled {
	return s.engine.Script()
}

// Current returns the frame at the current position.
func (s *Session) Current(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "current")
	frame, err := s.frame(span)
	return frame, s.end(span, "current", err)
}

// Step applies the current event and returns the next frame.
func (s *Session) Step(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "step")
	if err := s.engine.Step(); err != nil {
		return Frame{}, s.end(span, "step", err)
	}
	frame, err := s.frame(span)
	return frame, s.end(span, "step", err)
}

// Choose picks option index of the current choice.
func (s *Session) Choose(ctx context.Context, index int) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "choose")
	span.SetAttributes(attribute.Int("talespin.choice", index))
	if err := s.engine.Choose(index); err != nil {
		return Frame{}, s.end(span, "choose", err)
	}
	frame, err := s.frame(span)
	return frame, s.end(span, "choose", err)
}

// Jump moves to label.
func (s *Session) Jump(ctx context.Context, label string) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "jump")
	span.SetAttributes(attribute.String("talespin.label", label))
	if err := s.engine.JumpTo(label); err != nil {
		return Frame{}, s.end(span, "jump", err)
	}
	frame, err := s.frame(span)
	return frame, s.end(span, "jump", err)
}

// Visual returns the current presentation state.
func (s *Session) Visual(ctx context.Context) engine.Visual {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "visual")
	defer span.End()
	return s.engine.VisualState()
}

// State returns a copy of the engine state.
func (s *Session) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// Save returns the current save bytes, sealed when a keyring is configured.
func (s *Session) Save(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "save")
	data, err := s.encode()
	return data, s.end(span, "save", err)
}

// Restore replaces the session state with a save.
func (s *Session) Restore(ctx context.Context, data []byte) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.start(ctx, "restore")
	if err := s.restore(data); err != nil {
		return Frame{}, s.end(span, "restore", err)
	}
	frame, err := s.frame(span)
	return frame, s.end(span, "restore", err)
}

// SaveSlot writes the current state to slot.
func (s *Session) SaveSlot(ctx context.Context, slot storage.Slot) (storage.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, span := s.start(ctx, "save_slot")
	span.SetAttributes(attribute.String("talespin.slot", slot.String()))
	if s.opts.Store == nil {
		return storage.Metadata{}, s.end(span, "save_slot", ErrNoSlotStore)
	}
	data, err := s.encode()
	if err != nil {
		return storage.Metadata{}, s.end(span, "save_slot", err)
	}
	meta, err := s.opts.Store.PutSlot(ctx, slot, data)
	return meta, s.end(span, "save_slot", err)
}

// LoadSlot restores the state stored in slot.
func (s *Session) LoadSlot(ctx context.Context, slot storage.Slot) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, span := s.start(ctx, "load_slot")
	span.SetAttributes(attribute.String("talespin.slot", slot.String()))
	if s.opts.Store == nil {
		return Frame{}, s.end(span, "load_slot", ErrNoSlotStore)
	}
	data, _, err := s.opts.Store.GetSlot(ctx, slot)
	if err != nil {
		return Frame{}, s.end(span, "load_slot", err)
	}
	if err := s.restore(data); err != nil {
		return Frame{}, s.end(span, "load_slot", err)
	}
	frame, err := s.frame(span)
	return frame, s.end(span, "load_slot", err)
}

// QuickSave writes the quicksave slot.
func (s *Session) QuickSave(ctx context.Context) (storage.Metadata, error) {
	return s.SaveSlot(ctx, storage.Quicksave())
}

// QuickLoad restores the quicksave slot.
func (s *Session) QuickLoad(ctx context.Context) (Frame, error) {
	return s.LoadSlot(ctx, storage.Quicksave())
}

// Slots lists stored slots matching filter, newest first.
func (s *Session) Slots(ctx context.Context, filter string) ([]storage.Metadata, error) {
	ctx, span := s.tracer.Start(ctx, "play.slots")
	if s.opts.Store == nil {
		return nil, s.end(span, "slots", ErrNoSlotStore)
	}
	slots, err := s.opts.Store.ListSlots(ctx, filter)
	return slots, s.end(span, "slots", err)
}

func (s *Session) encode() ([]byte, error) {
	data, err := save.Save(s.engine)
	if err != nil {
		return nil, err
	}
	if s.opts.Keys == nil {
		return data, nil
	}
	return save.SealAuthenticated(data, s.opts.Keys)
}

func (s *Session) restore(data []byte) error {
	if save.IsSealed(data) {
		if s.opts.Keys == nil {
			return fmt.Errorf("%w: sealed save without a keyring", save.ErrNotASaveFile)
		}
		inner, err := save.OpenAuthenticated(data, s.opts.Keys)
		if err != nil {
			return err
		}
		data = inner
	}
	return save.Restore(s.engine, data)
}

// frame builds the current frame. Callers hold mu.
func (s *Session) frame(span trace.Span) (Frame, error) {
	frame := Frame{
		Position: s.engine.Position(),
		Finished: s.engine.Finished(),
		Visual:   s.engine.VisualState(),
	}
	if frame.Finished {
		return frame, nil
	}
	ev, err := s.engine.CurrentEvent()
	if err != nil {
		return Frame{}, err
	}
	if s.opts.Localization != nil {
		ev = s.opts.Localization.Localize(ev, s.opts.Locale)
	}
	frame.Kind = ev.Kind()
	span.SetAttributes(attribute.String("talespin.event_kind", string(frame.Kind)))

	switch e := ev.(type) {
	case event.Dialogue:
		frame.Speaker = e.Speaker
		frame.Text = e.Text
	case event.Choice:
		frame.Text = e.Prompt
		frame.Options = make([]string, len(e.Options))
		for i, option := range e.Options {
			frame.Options[i] = option.Text
		}
	}
	if s.opts.Renderer != nil {
		frame.Rendered, err = s.opts.Renderer.Render(ev, s.engine.View())
		if err != nil {
			return Frame{}, err
		}
	}
	return frame, nil
}

func (s *Session) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "play."+op, trace.WithAttributes(
		attribute.String("talespin.script_id", s.engine.Script().ID().Hex()),
		attribute.Int("talespin.position", s.engine.Position()),
	))
}

func (s *Session) end(span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Printf("play %s: %v", op, err)
	return err
}
