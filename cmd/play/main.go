// Package main plays a story script in the terminal.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	playcmd "github.com/louisbranch/talespin/internal/cmd/play"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/platform/config"
)

func main() {
	cfg, err := playcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := platformcmd.RunWithTelemetry(ctx, platformcmd.ServicePlay, func(ctx context.Context) error {
		return playcmd.Run(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	}); err != nil {
		config.Exitf("play: %v", err)
	}
}
