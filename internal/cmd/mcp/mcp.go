// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/louisbranch/talespin/internal/cmd/storyenv"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/services/mcp/domain"
	"github.com/louisbranch/talespin/internal/services/mcp/grant"
	"github.com/louisbranch/talespin/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	Transport    string   `env:"TALESPIN_MCP_TRANSPORT"     envDefault:"stdio"`
	HTTPAddr     string   `env:"TALESPIN_MCP_HTTP_ADDR"     envDefault:"localhost:8081"`
	AllowedHosts []string `env:"TALESPIN_MCP_ALLOWED_HOSTS" envSeparator:","`
	AuthToken    string   `env:"TALESPIN_MCP_TOKEN"`
	// Root confines story_open paths to one directory when set.
	Root   string `env:"TALESPIN_MCP_ROOT"`
	Script string `env:"TALESPIN_MCP_SCRIPT"`
	Story  storyenv.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "directory story_open paths resolve against")
	fs.StringVar(&cfg.Script, "script", cfg.Script, "story script to open on startup")
	cfg.Story.Bind(fs)
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the story runtime and serves MCP until ctx ends. HTTP requests
// may authenticate with access grants when TALESPIN_MCP_GRANT_PUBLIC_KEY is
// set.
func Run(ctx context.Context, cfg Config) error {
	grants, err := grant.LoadConfigFromEnv(nil)
	if err != nil {
		return err
	}
	// stdout carries the stdio protocol, so logs go to stderr.
	logger := log.New(os.Stderr, "[MCP] ", log.LstdFlags)
	rt, err := cfg.Story.Open(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Printf("close slot store: %v", err)
		}
	}()

	svc := serviceConfig(cfg, rt)
	svc.Grants = grants
	return service.Run(ctx, svc)
}

func serviceConfig(cfg Config, rt *storyenv.Runtime) service.Config {
	return service.Config{
		Transport:    service.TransportKind(cfg.Transport),
		HTTPAddr:     cfg.HTTPAddr,
		AllowedHosts: cfg.AllowedHosts,
		AuthToken:    cfg.AuthToken,
		Script:       cfg.Script,
		Workspace: domain.Options{
			Policy:  rt.Policy,
			Session: rt.Session,
			Root:    cfg.Root,
		},
	}
}
