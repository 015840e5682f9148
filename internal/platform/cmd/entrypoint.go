// Package cmd holds the startup plumbing shared by the talespin commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/talespin/internal/platform/config"
	"github.com/louisbranch/talespin/internal/platform/otel"
	"github.com/louisbranch/talespin/internal/platform/timeouts"
	"go.opentelemetry.io/otel/codes"
)

// Command names used as the telemetry service name.
const (
	ServiceCompile  = "compile"
	ServiceMCP      = "mcp"
	ServicePlay     = "play"
	ServiceRepro    = "repro"
	ServiceScenario = "scenario"
)

// ParseConfig loads environment defaults into cfg. Flags bound afterwards
// use the loaded values as their defaults, so flags win over env.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry sets up tracing for the named command and executes run
// inside a root span. A failed run marks the span as an error.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := otel.Setup(ctx, "talespin-"+service)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.TelemetryShutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()

	ctx, span := otel.Tracer("talespin/cmd").Start(ctx, service)
	defer span.End()
	if err := run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
