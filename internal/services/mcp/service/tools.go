package service

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/services/mcp/domain"
)

type mcpRegistrationTarget interface {
	AddTool(*mcp.Tool, any) error
	AddResource(*mcp.Resource, mcp.ResourceHandler)
}

type toolRegistration struct {
	tool    *mcp.Tool
	handler any
}

func registerStoryTools(registrar mcpRegistrationTarget, workspace *domain.Workspace, notify domain.ResourceUpdateNotifier) error {
	return registerTools(registrar, []toolRegistration{
		{tool: domain.StoryOpenTool(), handler: domain.StoryOpenHandler(workspace, notify)},
		{tool: domain.StoryCurrentTool(), handler: domain.StoryCurrentHandler(workspace)},
		{tool: domain.StoryStepTool(), handler: domain.StoryStepHandler(workspace, notify)},
		{tool: domain.StoryChooseTool(), handler: domain.StoryChooseHandler(workspace, notify)},
		{tool: domain.StoryJumpTool(), handler: domain.StoryJumpHandler(workspace, notify)},
		{tool: domain.StoryVisualTool(), handler: domain.StoryVisualHandler(workspace)},
	})
}

func registerSlotTools(registrar mcpRegistrationTarget, workspace *domain.Workspace, notify domain.ResourceUpdateNotifier) error {
	return registerTools(registrar, []toolRegistration{
		{tool: domain.StorySaveTool(), handler: domain.StorySaveHandler(workspace, notify)},
		{tool: domain.StoryLoadTool(), handler: domain.StoryLoadHandler(workspace, notify)},
		{tool: domain.StorySlotsTool(), handler: domain.StorySlotsHandler(workspace)},
	})
}

// registerStoryResources registers the readable story resources.
func registerStoryResources(registrar mcpRegistrationTarget, workspace *domain.Workspace) {
	registrar.AddResource(domain.CurrentStoryResource(), domain.CurrentStoryResourceHandler(workspace))
	registrar.AddResource(domain.SlotsResource(), domain.SlotsResourceHandler(workspace))
}

func registerTools(registrar mcpRegistrationTarget, registrations []toolRegistration) error {
	for _, registration := range registrations {
		if err := registerTool(registrar, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerTool(registrar mcpRegistrationTarget, tool *mcp.Tool, handler any) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	return registrar.AddTool(tool, handler)
}
