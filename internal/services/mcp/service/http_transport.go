package service

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/platform/timeouts"
	"github.com/louisbranch/talespin/internal/services/mcp/grant"
)

var listenTCP = net.Listen

// defaultHTTPAddr keeps the default footprint local.
const defaultHTTPAddr = "localhost:8081"

// HTTPTransport serves an MCP server over streamable HTTP behind the host
// and token checks in http_transport_auth.go.
type HTTPTransport struct {
	addr       string
	hosts      hostGuard
	apiToken   string
	grants     *grant.Config
	server     *mcp.Server
	httpServer *http.Server
}

// NewHTTPTransportWithServer creates an HTTP transport for server.
func NewHTTPTransportWithServer(addr string, server *mcp.Server) *HTTPTransport {
	if addr == "" {
		addr = defaultHTTPAddr
	}
	return &HTTPTransport{
		addr:   addr,
		hosts:  hostGuard{},
		server: server,
	}
}

func (t *HTTPTransport) applyConfig(cfg Config) {
	if t == nil {
		return
	}
	t.hosts = newHostGuard(cfg.AllowedHosts)
	t.apiToken = strings.TrimSpace(cfg.AuthToken)
	t.grants = cfg.Grants
}

// Handler returns the routed HTTP handler:
//
//	/mcp         streamable MCP endpoint
//	/mcp/health  liveness probe
func (t *HTTPTransport) Handler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return t.server
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/health", t.handleHealth)
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if err := t.hosts.check(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if !t.authorizeRequest(w, r) {
			return
		}
		streamable.ServeHTTP(w, r)
	})
	return mux
}

// Start serves HTTP until ctx ends, then shuts down gracefully.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.httpServer = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	listener, err := listenTCP("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.addr, err)
	}
	log.Printf("Starting MCP HTTP server on %s", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down MCP HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}
