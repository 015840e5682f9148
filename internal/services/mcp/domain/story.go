package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/play"
)

// CurrentStoryURI addresses the current frame resource.
const CurrentStoryURI = "story://current"

// FrameResult is one frame of the open story.
type FrameResult struct {
	Position int      `json:"position" jsonschema:"index of the current event"`
	Kind     string   `json:"kind,omitempty" jsonschema:"event kind at the position (dialogue, choice, scene, ...)"`
	Speaker  string   `json:"speaker,omitempty" jsonschema:"dialogue speaker"`
	Text     string   `json:"text,omitempty" jsonschema:"dialogue text or choice prompt"`
	Options  []string `json:"options,omitempty" jsonschema:"choice options in order; choose by 0-based index"`
	Rendered string   `json:"rendered,omitempty" jsonschema:"renderer output for the event"`
	Finished bool     `json:"finished" jsonschema:"true once the story has ended"`
}

func frameResult(frame play.Frame) FrameResult {
	return FrameResult{
		Position: frame.Position,
		Kind:     string(frame.Kind),
		Speaker:  frame.Speaker,
		Text:     frame.Text,
		Options:  frame.Options,
		Rendered: frame.Rendered,
		Finished: frame.Finished,
	}
}

// toolError keeps the domain code visible in the tool error text.
func toolError(op string, err error) error {
	return fmt.Errorf("%s failed [%s]: %w", op, apperrors.CodeOf(err), err)
}

func notify(ctx context.Context, notifier ResourceUpdateNotifier, uris ...string) {
	if notifier == nil {
		return
	}
	for _, uri := range uris {
		notifier(ctx, uri)
	}
}

// StoryOpenInput represents the MCP tool input for opening a story.
type StoryOpenInput struct {
	Path string `json:"path" jsonschema:"path of the story script JSON (required)"`
}

// StoryOpenResult represents the MCP tool output for opening a story.
type StoryOpenResult struct {
	Path     string      `json:"path" jsonschema:"resolved script path"`
	ScriptID string      `json:"script_id" jsonschema:"hex SHA-256 identity of the compiled script"`
	Events   int         `json:"events" jsonschema:"number of compiled events"`
	Frame    FrameResult `json:"frame" jsonschema:"frame at the start label"`
}

// StoryOpenTool defines the MCP tool schema for opening a story.
func StoryOpenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_open",
		Description: "Compiles a story script and starts a new play session at its start label, replacing any open story",
	}
}

// StoryOpenHandler executes a story open request.
func StoryOpenHandler(w *Workspace, notifier ResourceUpdateNotifier) mcp.ToolHandlerFor[StoryOpenInput, StoryOpenResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StoryOpenInput) (*mcp.CallToolResult, StoryOpenResult, error) {
		session, err := w.Open(input.Path)
		if err != nil {
			return nil, StoryOpenResult{}, toolError("story open", err)
		}
		frame, err := session.Current(ctx)
		if err != nil {
			return nil, StoryOpenResult{}, toolError("story open", err)
		}
		compiled := session.Script()
		notify(ctx, notifier, CurrentStoryURI)
		return nil, StoryOpenResult{
			Path:     w.Path(),
			ScriptID: compiled.ID().Hex(),
			Events:   compiled.Len(),
			Frame:    frameResult(frame),
		}, nil
	}
}

// StoryCurrentInput represents the MCP tool input for reading the current frame.
type StoryCurrentInput struct{}

// StoryCurrentTool defines the MCP tool schema for reading the current frame.
func StoryCurrentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_current",
		Description: "Returns the frame at the current position without advancing",
	}
}

// StoryCurrentHandler executes a current frame request.
func StoryCurrentHandler(w *Workspace) mcp.ToolHandlerFor[StoryCurrentInput, FrameResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ StoryCurrentInput) (*mcp.CallToolResult, FrameResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, FrameResult{}, err
		}
		frame, err := session.Current(ctx)
		if err != nil {
			return nil, FrameResult{}, toolError("story current", err)
		}
		return nil, frameResult(frame), nil
	}
}

// StoryStepInput represents the MCP tool input for stepping.
type StoryStepInput struct{}

// StoryStepTool defines the MCP tool schema for stepping.
func StoryStepTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_step",
		Description: "Applies the current event and advances. Fails with AWAITING_CHOICE on a choice and ALREADY_FINISHED at the end",
	}
}

// StoryStepHandler executes a step request.
func StoryStepHandler(w *Workspace, notifier ResourceUpdateNotifier) mcp.ToolHandlerFor[StoryStepInput, FrameResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ StoryStepInput) (*mcp.CallToolResult, FrameResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, FrameResult{}, err
		}
		frame, err := session.Step(ctx)
		if err != nil {
			return nil, FrameResult{}, toolError("story step", err)
		}
		notify(ctx, notifier, CurrentStoryURI)
		return nil, frameResult(frame), nil
	}
}

// StoryChooseInput represents the MCP tool input for answering a choice.
type StoryChooseInput struct {
	Index int `json:"index" jsonschema:"0-based option index"`
}

// StoryChooseTool defines the MCP tool schema for answering a choice.
func StoryChooseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_choose",
		Description: "Picks an option of the current choice by 0-based index and jumps to its target",
	}
}

// StoryChooseHandler executes a choose request.
func StoryChooseHandler(w *Workspace, notifier ResourceUpdateNotifier) mcp.ToolHandlerFor[StoryChooseInput, FrameResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StoryChooseInput) (*mcp.CallToolResult, FrameResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, FrameResult{}, err
		}
		frame, err := session.Choose(ctx, input.Index)
		if err != nil {
			return nil, FrameResult{}, toolError("story choose", err)
		}
		notify(ctx, notifier, CurrentStoryURI)
		return nil, frameResult(frame), nil
	}
}

// StoryJumpInput represents the MCP tool input for jumping to a label.
type StoryJumpInput struct {
	Label string `json:"label" jsonschema:"label to jump to (required)"`
}

// StoryJumpTool defines the MCP tool schema for jumping to a label.
func StoryJumpTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_jump",
		Description: "Moves the story to a label without applying any event",
	}
}

// StoryJumpHandler executes a jump request.
func StoryJumpHandler(w *Workspace, notifier ResourceUpdateNotifier) mcp.ToolHandlerFor[StoryJumpInput, FrameResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StoryJumpInput) (*mcp.CallToolResult, FrameResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, FrameResult{}, err
		}
		frame, err := session.Jump(ctx, input.Label)
		if err != nil {
			return nil, FrameResult{}, toolError("story jump", err)
		}
		notify(ctx, notifier, CurrentStoryURI)
		return nil, frameResult(frame), nil
	}
}

// CharacterResult is one on-stage character.
type CharacterResult struct {
	Name       string  `json:"name" jsonschema:"character name"`
	Expression *string `json:"expression,omitempty" jsonschema:"expression asset, if any"`
	Position   *string `json:"position,omitempty" jsonschema:"stage position, if any"`
}

// StoryVisualInput represents the MCP tool input for reading visual state.
type StoryVisualInput struct{}

// StoryVisualResult represents the accumulated presentation state.
type StoryVisualResult struct {
	Background *string           `json:"background,omitempty" jsonschema:"background asset, absent when unset"`
	Music      *string           `json:"music,omitempty" jsonschema:"music asset, absent when unset"`
	Characters []CharacterResult `json:"characters" jsonschema:"on-stage characters in order"`
}

// StoryVisualTool defines the MCP tool schema for reading visual state.
func StoryVisualTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_visual",
		Description: "Returns the background, music and on-stage characters",
	}
}

// StoryVisualHandler executes a visual state request.
func StoryVisualHandler(w *Workspace) mcp.ToolHandlerFor[StoryVisualInput, StoryVisualResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ StoryVisualInput) (*mcp.CallToolResult, StoryVisualResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, StoryVisualResult{}, err
		}
		return nil, visualResult(session.Visual(ctx)), nil
	}
}

func visualResult(v engine.Visual) StoryVisualResult {
	result := StoryVisualResult{
		Background: v.Background,
		Music:      v.Music,
		Characters: make([]CharacterResult, 0, len(v.Characters)),
	}
	for _, c := range v.Characters {
		result.Characters = append(result.Characters, CharacterResult{
			Name:       c.Name,
			Expression: c.Expression,
			Position:   c.Position,
		})
	}
	return result
}
