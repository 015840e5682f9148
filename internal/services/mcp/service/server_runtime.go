package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	switch cfg.Transport {
	case TransportStdio:
		server, err := newConfiguredServer(cfg)
		if err != nil {
			return err
		}
		return server.serveWithTransport(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return runWithHTTPTransport(ctx, cfg)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// newConfiguredServer builds a server and opens cfg.Script when one is set.
func newConfiguredServer(cfg Config) (*Server, error) {
	server, err := New(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg.Script != "" {
		if _, err := server.workspace.Open(cfg.Script); err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Script, err)
		}
		log.Printf("mcp opened story %s", server.workspace.Path())
	}
	return server, nil
}

// runWithHTTPTransport serves the same tools over streamable HTTP.
func runWithHTTPTransport(ctx context.Context, cfg Config) error {
	server, err := newConfiguredServer(cfg)
	if err != nil {
		return err
	}
	httpTransport := NewHTTPTransportWithServer(cfg.HTTPAddr, server.mcpServer)
	httpTransport.applyConfig(cfg)
	return httpTransport.Start(ctx)
}

// Serve starts the MCP server on stdio and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
