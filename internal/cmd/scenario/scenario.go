// Package scenario runs Lua story scenarios from the command line.
package scenario

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"

	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/tools/scenario"
)

// Config holds scenario command configuration.
type Config struct {
	Scenario   string `env:"TALESPIN_SCENARIO_FILE"`
	Assertions bool   `env:"TALESPIN_SCENARIO_ASSERT"  envDefault:"true"`
	Verbose    bool   `env:"TALESPIN_SCENARIO_VERBOSE"`
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to scenario lua file")
	fs.BoolVar(&cfg.Assertions, "assert", cfg.Assertions, "enable assertions (disable to log expectations)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose logging")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the scenario command. Scripts compile under the policy from
// TALESPIN_POLICY_*.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Scenario == "" {
		return errors.New("scenario path is required")
	}
	p, err := policy.FromEnv()
	if err != nil {
		return err
	}

	mode := scenario.AssertionStrict
	if !cfg.Assertions {
		mode = scenario.AssertionLogOnly
	}

	logger := log.New(errOut, "", 0)
	if err := scenario.RunFile(ctx, scenario.Config{
		Policy:     p,
		Assertions: mode,
		Verbose:    cfg.Verbose,
		Logger:     logger,
	}, cfg.Scenario); err != nil {
		return err
	}
	_, err = io.WriteString(out, "scenario passed: "+cfg.Scenario+"\n")
	return err
}
