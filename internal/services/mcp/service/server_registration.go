package service

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/services/mcp/domain"
	"github.com/louisbranch/talespin/internal/story/repro"
)

type mcpRegistrationKind int

const (
	mcpRegistrationKindTools mcpRegistrationKind = iota
	mcpRegistrationKindResources
)

type mcpRegistrationModule struct {
	name     string
	kind     mcpRegistrationKind
	register func(mcpRegistrationTarget) error
}

const (
	mcpStoryToolsModuleName     = "story-tools"
	mcpSlotToolsModuleName      = "slot-tools"
	mcpReproToolsModuleName     = "repro-tools"
	mcpStoryResourcesModuleName = "story-resources"
)

type mcpServerRegistrationAdapter struct {
	server *mcp.Server
}

func (r mcpServerRegistrationAdapter) AddTool(tool *mcp.Tool, handler any) error {
	return addMCPTool(r.server, tool, handler)
}

func (r mcpServerRegistrationAdapter) AddResource(resource *mcp.Resource, handler mcp.ResourceHandler) {
	r.server.AddResource(resource, handler)
}

type mcpToolRegistrar struct {
	matches func(any) bool
	add     func(*mcp.Server, *mcp.Tool, any)
}

func newMCPToolRegistrar[I any, O any]() mcpToolRegistrar {
	return mcpToolRegistrar{
		matches: func(handler any) bool {
			_, ok := handler.(mcp.ToolHandlerFor[I, O])
			return ok
		},
		add: func(server *mcp.Server, tool *mcp.Tool, handler any) {
			mcp.AddTool(server, tool, handler.(mcp.ToolHandlerFor[I, O]))
		},
	}
}

var mcpToolRegistrars = []mcpToolRegistrar{
	newMCPToolRegistrar[domain.StoryOpenInput, domain.StoryOpenResult](),
	newMCPToolRegistrar[domain.StoryCurrentInput, domain.FrameResult](),
	newMCPToolRegistrar[domain.StoryStepInput, domain.FrameResult](),
	newMCPToolRegistrar[domain.StoryChooseInput, domain.FrameResult](),
	newMCPToolRegistrar[domain.StoryJumpInput, domain.FrameResult](),
	newMCPToolRegistrar[domain.StoryVisualInput, domain.StoryVisualResult](),
	newMCPToolRegistrar[domain.StorySaveInput, domain.SlotResult](),
	newMCPToolRegistrar[domain.StoryLoadInput, domain.FrameResult](),
	newMCPToolRegistrar[domain.StorySlotsInput, domain.StorySlotsResult](),
	newMCPToolRegistrar[domain.StoryReproInput, repro.Report](),
}

func addMCPTool(server *mcp.Server, tool *mcp.Tool, handler any) error {
	for _, registrar := range mcpToolRegistrars {
		if registrar.matches(handler) {
			registrar.add(server, tool, handler)
			return nil
		}
	}
	toolName := "<nil>"
	if tool != nil {
		toolName = tool.Name
	}
	return fmt.Errorf("mcp registration adapter does not support handler type %T for tool %q", handler, toolName)
}

func newMCPRegistrationModules(
	workspace *domain.Workspace,
	opts domain.Options,
	notify domain.ResourceUpdateNotifier,
) []mcpRegistrationModule {
	return []mcpRegistrationModule{
		{
			name: mcpStoryToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerStoryTools(registrar, workspace, notify)
			},
		},
		{
			name: mcpSlotToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerSlotTools(registrar, workspace, notify)
			},
		},
		{
			name: mcpReproToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerTool(registrar, domain.StoryReproTool(), domain.StoryReproHandler(opts.Policy))
			},
		},
		{
			name: mcpStoryResourcesModuleName,
			kind: mcpRegistrationKindResources,
			register: func(registrar mcpRegistrationTarget) error {
				registerStoryResources(registrar, workspace)
				return nil
			},
		},
	}
}
