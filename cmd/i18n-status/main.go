// Package main prints translation coverage of the embedded catalogs.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/talespin/internal/platform/config"
	"github.com/louisbranch/talespin/internal/tools/i18nstatus"
)

func main() {
	cfg, err := i18nstatus.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := i18nstatus.Run(cfg, os.Stdout); err != nil {
		config.Exitf("i18n status: %v", err)
	}
}
