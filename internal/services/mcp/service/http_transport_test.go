package service

import (
	"bytes"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/talespin/internal/services/mcp/grant"
)

func newTestTransport(t *testing.T, cfg Config) *HTTPTransport {
	t.Helper()
	server, err := New(testOptions(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	transport := NewHTTPTransportWithServer("", server.mcpServer)
	transport.applyConfig(cfg)
	return transport
}

func TestNewHTTPTransportDefaultsToLocalhost(t *testing.T) {
	transport := NewHTTPTransportWithServer("", nil)
	if transport.addr != defaultHTTPAddr {
		t.Fatalf("addr = %q", transport.addr)
	}
}

func TestHealthRejectsForeignHosts(t *testing.T) {
	handler := newTestTransport(t, Config{}).Handler()

	tests := []struct {
		name   string
		host   string
		origin string
		want   int
	}{
		{name: "loopback", host: "localhost:8081", want: http.StatusOK},
		{name: "ipv6 loopback", host: "[::1]:8081", want: http.StatusOK},
		{name: "foreign host", host: "evil.example:8081", want: http.StatusBadRequest},
		{name: "foreign origin", host: "127.0.0.1:8081", origin: "http://evil.example", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAllowedHostsExtendLoopback(t *testing.T) {
	handler := newTestTransport(t, Config{AllowedHosts: []string{" Story.Example "}}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
	req.Host = "story.example"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMCPEndpointRequiresToken(t *testing.T) {
	handler := newTestTransport(t, Config{AuthToken: "s3cret"}).Handler()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			req.Host = "localhost"
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header")
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Host = "localhost"
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized || rec.Code == http.StatusForbidden {
		t.Fatalf("authorized request rejected with %d", rec.Code)
	}
}

func TestMCPEndpointAcceptsAccessGrants(t *testing.T) {
	public, private, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{3}, 64)))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	valid, err := grant.Issue(private, grant.Request{Subject: "desk", TTL: time.Hour, Now: now})
	if err != nil {
		t.Fatalf("issue grant: %v", err)
	}
	stale, err := grant.Issue(private, grant.Request{Subject: "desk", TTL: time.Hour, Now: func() time.Time { return now().Add(-2 * time.Hour) }})
	if err != nil {
		t.Fatalf("issue grant: %v", err)
	}

	grants := &grant.Config{Issuer: grant.DefaultIssuer, Audience: grant.DefaultAudience, Key: public, Now: now}
	handler := newTestTransport(t, Config{AuthToken: "s3cret", Grants: grants}).Handler()

	tests := []struct {
		name     string
		token    string
		wantCode string
	}{
		{name: "static token", token: "s3cret"},
		{name: "valid grant", token: valid},
		{name: "expired grant", token: stale, wantCode: "ACCESS_GRANT_EXPIRED"},
		{name: "garbage", token: "nope", wantCode: "ACCESS_GRANT_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			req.Host = "localhost"
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if tt.wantCode == "" {
				if rec.Code == http.StatusUnauthorized || rec.Code == http.StatusForbidden {
					t.Fatalf("authorized request rejected with %d", rec.Code)
				}
				return
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Fatalf("body = %q, want %s", rec.Body.String(), tt.wantCode)
			}
		})
	}
}

func TestMCPEndpointRejectsForeignHost(t *testing.T) {
	handler := newTestTransport(t, Config{}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Host = "evil.example"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHostGuardAllows(t *testing.T) {
	guard := newHostGuard([]string{"Story.Example", " "})
	tests := []struct {
		host string
		want bool
	}{
		{host: "localhost", want: true},
		{host: "127.0.0.2:9000", want: true},
		{host: "::1", want: true},
		{host: "[::1]", want: true},
		{host: "STORY.example:443", want: true},
		{host: "story.example.evil", want: false},
		{host: "[::1", want: false},
		{host: "", want: false},
	}
	for _, tt := range tests {
		if got := guard.allows(tt.host); got != tt.want {
			t.Fatalf("allows(%q) = %t, want %t", tt.host, got, tt.want)
		}
	}
}
