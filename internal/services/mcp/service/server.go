package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/services/mcp/domain"
	"github.com/louisbranch/talespin/internal/services/mcp/grant"
)

const serverVersion = "0.1.0"

// serverName identifies this MCP server to clients.
const serverName = "talespin MCP"

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over streamable HTTP for remote clients.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	Transport TransportKind
	// HTTPAddr defaults to localhost:8081 for HTTP transport.
	HTTPAddr string
	// AllowedHosts extends the loopback-only Host/Origin allow list.
	AllowedHosts []string
	// AuthToken, when set, is required as a bearer token on HTTP requests.
	AuthToken string
	// Grants, when set, admits bearer tokens that are valid access grants.
	Grants    *grant.Config
	Workspace domain.Options
	// Script, when set, is opened before serving.
	Script string
}

// Server hosts the MCP server and the story workspace its tools share.
type Server struct {
	mcpServer *mcp.Server
	workspace *domain.Workspace
}

// New creates a configured MCP server over a fresh workspace.
func New(opts domain.Options) (*Server, error) {
	return newServer(domain.NewWorkspace(opts), opts)
}

func newServer(workspace *domain.Workspace, opts domain.Options) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		CompletionHandler:  completionHandler,
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})
	server := &Server{mcpServer: mcpServer, workspace: workspace}

	resourceNotifier := func(ctx context.Context, uri string) {
		if strings.TrimSpace(uri) == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if err := mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
			log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
		}
	}

	for _, module := range newMCPRegistrationModules(workspace, opts, resourceNotifier) {
		if err := module.register(mcpServerRegistrationAdapter{server: mcpServer}); err != nil {
			return nil, fmt.Errorf("register MCP module %q: %w", module.name, err)
		}
	}
	return server, nil
}

// Workspace returns the story workspace shared by the tools.
func (s *Server) Workspace() *domain.Workspace {
	return s.workspace
}

// completionHandler answers completion/complete with no values; the server
// exposes no prompts or resource templates.
func completionHandler(_ context.Context, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	return &mcp.CompleteResult{
		Completion: mcp.CompletionResultDetails{
			Values: []string{},
		},
	}, nil
}

// resourceSubscribeHandler accepts resource subscriptions with a valid URI.
func resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// resourceUnsubscribeHandler accepts resource unsubscriptions with a valid URI.
func resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}
