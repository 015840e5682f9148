package engine

import "github.com/louisbranch/talespin/internal/story/event"

// View is the read-only state handed to renderers. It is a copy; changing
// it has no effect on the engine.
type View struct {
	Position int
	Finished bool
	Visual   Visual
	History  []Line
	Flags    map[string]bool
	Vars     map[string]int64
}

// Renderer formats an event for presentation.
type Renderer interface {
	Render(ev event.Event, v View) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ev event.Event, v View) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(ev event.Event, v View) (string, error) {
	return f(ev, v)
}

// View returns a snapshot for renderers.
func (e *Engine) View() View {
	s := e.state.Clone()
	return View{
		Position: s.Position,
		Finished: e.Finished(),
		Visual:   s.Visual,
		History:  s.History.Lines(),
		Flags:    s.Flags,
		Vars:     s.Vars,
	}
}

// RenderCurrent formats the current event with r.
func (e *Engine) RenderCurrent(r Renderer) (string, error) {
	ev, err := e.CurrentEvent()
	if err != nil {
		return "", err
	}
	return r.Render(ev, e.View())
}
