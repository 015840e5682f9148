// Package main generates MCP access grant keys and issues grants.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/talespin/internal/platform/config"
	"github.com/louisbranch/talespin/internal/tools/accessgrant"
)

func main() {
	cfg, err := accessgrant.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := accessgrant.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("access grant: %v", err)
	}
}
