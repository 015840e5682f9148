package domain

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/story/storage"
)

// SlotsURI addresses the save slot listing resource.
const SlotsURI = "story://slots"

// SlotResult describes one stored save.
type SlotResult struct {
	Slot         string `json:"slot" jsonschema:"slot name: a number or quick"`
	Position     int    `json:"position" jsonschema:"story position at save time"`
	ScriptID     string `json:"script_id" jsonschema:"hex identity of the saved script"`
	ChapterLabel string `json:"chapter_label,omitempty" jsonschema:"background shown at save time"`
	SummaryLine  string `json:"summary_line,omitempty" jsonschema:"last dialogue line before the save"`
	UpdatedAt    string `json:"updated_at" jsonschema:"RFC3339 timestamp of the save"`
}

func slotResult(meta storage.Metadata) SlotResult {
	return SlotResult{
		Slot:         meta.Slot().String(),
		Position:     meta.Position,
		ScriptID:     meta.ScriptIDHex,
		ChapterLabel: meta.ChapterLabel,
		SummaryLine:  meta.SummaryLine,
		UpdatedAt:    meta.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// StorySaveInput represents the MCP tool input for saving.
type StorySaveInput struct {
	Slot string `json:"slot" jsonschema:"slot number (1-999) or quick"`
}

// StorySaveTool defines the MCP tool schema for saving.
func StorySaveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_save",
		Description: "Saves the current state to a slot, keeping the previous save as a backup",
	}
}

// StorySaveHandler executes a save request.
func StorySaveHandler(w *Workspace, notifier ResourceUpdateNotifier) mcp.ToolHandlerFor[StorySaveInput, SlotResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StorySaveInput) (*mcp.CallToolResult, SlotResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, SlotResult{}, err
		}
		slot, err := storage.ParseSlot(input.Slot)
		if err != nil {
			return nil, SlotResult{}, toolError("story save", err)
		}
		meta, err := session.SaveSlot(ctx, slot)
		if err != nil {
			return nil, SlotResult{}, toolError("story save", err)
		}
		notify(ctx, notifier, SlotsURI)
		return nil, slotResult(meta), nil
	}
}

// StoryLoadInput represents the MCP tool input for loading.
type StoryLoadInput struct {
	Slot string `json:"slot" jsonschema:"slot number (1-999) or quick"`
}

// StoryLoadTool defines the MCP tool schema for loading.
func StoryLoadTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_load",
		Description: "Restores a saved slot into the open story. Saves from another script are rejected",
	}
}

// StoryLoadHandler executes a load request.
func StoryLoadHandler(w *Workspace, notifier ResourceUpdateNotifier) mcp.ToolHandlerFor[StoryLoadInput, FrameResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StoryLoadInput) (*mcp.CallToolResult, FrameResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, FrameResult{}, err
		}
		slot, err := storage.ParseSlot(input.Slot)
		if err != nil {
			return nil, FrameResult{}, toolError("story load", err)
		}
		frame, err := session.LoadSlot(ctx, slot)
		if err != nil {
			return nil, FrameResult{}, toolError("story load", err)
		}
		notify(ctx, notifier, CurrentStoryURI)
		return nil, frameResult(frame), nil
	}
}

// StorySlotsInput represents the MCP tool input for listing saves.
type StorySlotsInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"optional AIP-160 filter, e.g. quick = false AND position > 3"`
}

// StorySlotsResult represents the MCP tool output for listing saves.
type StorySlotsResult struct {
	Slots []SlotResult `json:"slots" jsonschema:"saves, newest first"`
}

// StorySlotsTool defines the MCP tool schema for listing saves.
func StorySlotsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_slots",
		Description: "Lists save slots newest first, optionally filtered by slot_id, quick, position, script_id, chapter_label or updated_at",
	}
}

// StorySlotsHandler executes a slot listing request.
func StorySlotsHandler(w *Workspace) mcp.ToolHandlerFor[StorySlotsInput, StorySlotsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StorySlotsInput) (*mcp.CallToolResult, StorySlotsResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, StorySlotsResult{}, err
		}
		slots, err := session.Slots(ctx, input.Filter)
		if err != nil {
			return nil, StorySlotsResult{}, toolError("story slots", err)
		}
		result := StorySlotsResult{Slots: make([]SlotResult, 0, len(slots))}
		for _, meta := range slots {
			result.Slots = append(result.Slots, slotResult(meta))
		}
		return nil, result, nil
	}
}
