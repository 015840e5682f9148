package mcp

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/louisbranch/talespin/internal/cmd/storyenv"
	"github.com/louisbranch/talespin/internal/services/mcp/service"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Transport != "stdio" {
		t.Fatalf("expected default transport stdio, got %q", cfg.Transport)
	}
	if cfg.HTTPAddr != "localhost:8081" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if len(cfg.AllowedHosts) != 0 {
		t.Fatalf("expected no allowed hosts, got %v", cfg.AllowedHosts)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("TALESPIN_MCP_ALLOWED_HOSTS", "story.example.com,play.example.com")
	t.Setenv("TALESPIN_MCP_TOKEN", "secret")
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-transport", "http", "-http-addr", "127.0.0.1:9000", "-root", "stories", "-locale", "pt-BR"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Transport != "http" || cfg.HTTPAddr != "127.0.0.1:9000" || cfg.Root != "stories" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedHosts) != 2 || cfg.AllowedHosts[1] != "play.example.com" {
		t.Fatalf("allowed hosts = %v", cfg.AllowedHosts)
	}
	if cfg.AuthToken != "secret" || cfg.Story.Locale != "pt-BR" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestServiceConfigCarriesRuntime(t *testing.T) {
	cfg := Config{Transport: "http", HTTPAddr: "localhost:9001", Root: "stories", AuthToken: "t"}
	cfg.Story = storyenv.Config{SlotsDB: filepath.Join(t.TempDir(), "slots.db"), Locale: "en-US"}
	rt, err := cfg.Story.Open(nil)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()

	got := serviceConfig(cfg, rt)
	if got.Transport != service.TransportHTTP || got.HTTPAddr != "localhost:9001" || got.AuthToken != "t" {
		t.Fatalf("service config = %+v", got)
	}
	if got.Workspace.Root != "stories" || got.Workspace.Session.Store == nil {
		t.Fatalf("workspace options = %+v", got.Workspace)
	}
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	cfg := Config{Transport: "carrier-pigeon"}
	cfg.Story.Locale = "en-US"
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected unsupported transport error")
	}
}
