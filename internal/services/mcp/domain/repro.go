package domain

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/repro"
)

// StoryReproInput represents the MCP tool input for running a repro case.
type StoryReproInput struct {
	CaseJSON string `json:"case_json" jsonschema:"talespin.repro_case.v1 document (required)"`
}

// StoryReproTool defines the MCP tool schema for running a repro case.
func StoryReproTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_repro",
		Description: "Runs a deterministic repro case in a fresh engine and reports the trace, monitor results and oracle verdict. The open story is not touched",
	}
}

// StoryReproHandler executes a repro request under p.
func StoryReproHandler(p policy.Policy) mcp.ToolHandlerFor[StoryReproInput, repro.Report] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input StoryReproInput) (*mcp.CallToolResult, repro.Report, error) {
		c, err := repro.ParseCase([]byte(strings.TrimSpace(input.CaseJSON)))
		if err != nil {
			return nil, repro.Report{}, err
		}
		return nil, repro.Run(c, p), nil
	}
}
