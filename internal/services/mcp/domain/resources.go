package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CurrentStoryResource defines the readable current frame resource.
func CurrentStoryResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "story_current",
		Title:       "Current frame",
		Description: "Frame and visual state at the current position of the open story",
		MIMEType:    "application/json",
		URI:         CurrentStoryURI,
	}
}

// CurrentStoryPayload is the body of the current frame resource.
type CurrentStoryPayload struct {
	Path   string            `json:"path"`
	Frame  FrameResult       `json:"frame"`
	Visual StoryVisualResult `json:"visual"`
}

// CurrentStoryResourceHandler reads the current frame.
func CurrentStoryResourceHandler(w *Workspace) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, err
		}
		frame, err := session.Current(ctx)
		if err != nil {
			return nil, toolError("read current frame", err)
		}
		return jsonResource(resourceURI(req, CurrentStoryURI), CurrentStoryPayload{
			Path:   w.Path(),
			Frame:  frameResult(frame),
			Visual: visualResult(frame.Visual),
		})
	}
}

// SlotsResource defines the readable save slot listing.
func SlotsResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "story_slots",
		Title:       "Save slots",
		Description: "Every stored save slot, newest first",
		MIMEType:    "application/json",
		URI:         SlotsURI,
	}
}

// SlotsResourceHandler reads the slot listing.
func SlotsResourceHandler(w *Workspace) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		session, err := w.Session()
		if err != nil {
			return nil, err
		}
		slots, err := session.Slots(ctx, "")
		if err != nil {
			return nil, toolError("list slots", err)
		}
		payload := StorySlotsResult{Slots: make([]SlotResult, 0, len(slots))}
		for _, meta := range slots {
			payload.Slots = append(payload.Slots, slotResult(meta))
		}
		return jsonResource(resourceURI(req, SlotsURI), payload)
	}
}

func resourceURI(req *mcp.ReadResourceRequest, fallback string) string {
	if req == nil || req.Params == nil || req.Params.URI == "" {
		return fallback
	}
	return req.Params.URI
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
