// Package main replays repro cases and prints their run reports.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	reprocmd "github.com/louisbranch/talespin/internal/cmd/repro"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/platform/config"
)

func main() {
	cfg, err := reprocmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceRepro, func(ctx context.Context) error {
		return reprocmd.Run(ctx, cfg, os.Stdout)
	}); err != nil {
		config.Exitf("repro: %v", err)
	}
}
