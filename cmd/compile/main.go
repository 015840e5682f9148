package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	compilecmd "github.com/louisbranch/talespin/internal/cmd/compile"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/platform/config"
)

func main() {
	cfg, err := compilecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceCompile, func(ctx context.Context) error {
		return compilecmd.Run(ctx, cfg, os.Stdout, os.Stderr)
	}); err != nil {
		config.Exitf("compile: %v", err)
	}
}
