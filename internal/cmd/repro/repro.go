// Package repro replays a repro case file and prints its run report.
package repro

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/talespin/internal/cmd/storyenv"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/story/repro"
)

// ErrOracleNotTriggered is returned under -require-oracle when the run does
// not reproduce the case's failure signature.
var ErrOracleNotTriggered = errors.New("repro oracle was not triggered")

// Config holds repro command configuration.
type Config struct {
	Case string `env:"TALESPIN_REPRO_CASE"`
	Out  string `env:"TALESPIN_REPRO_OUT"`
	// Script, when set, writes a fresh case for that script instead of
	// running one.
	Script        string `env:"TALESPIN_REPRO_SCRIPT"`
	Title         string `env:"TALESPIN_REPRO_TITLE"`
	RequireOracle bool   `env:"TALESPIN_REPRO_REQUIRE_ORACLE"`
	Story         storyenv.Config
}

// ParseConfig parses environment and flags into a Config. A positional
// argument names the case when -case is not set.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Case, "case", cfg.Case, "path to a repro case JSON file")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "write the report (or new case) to this path instead of stdout")
	fs.StringVar(&cfg.Script, "new", cfg.Script, "create a case skeleton for this story script")
	fs.StringVar(&cfg.Title, "title", cfg.Title, "title for a new case")
	fs.BoolVar(&cfg.RequireOracle, "require-oracle", cfg.RequireOracle, "fail unless the oracle triggers")
	cfg.Story.Bind(fs)
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Case == "" && fs.NArg() > 0 {
		cfg.Case = fs.Arg(0)
	}
	return cfg, nil
}

// Run executes the repro command.
func Run(_ context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Script != "" {
		return writeCase(cfg, out)
	}
	if cfg.Case == "" {
		return errors.New("repro case path is required")
	}

	data, err := os.ReadFile(cfg.Case)
	if err != nil {
		return fmt.Errorf("read repro case: %w", err)
	}
	c, err := repro.ParseCase(data)
	if err != nil {
		return err
	}
	p, err := cfg.Story.Policy()
	if err != nil {
		return err
	}

	report := repro.Run(c, p)
	if err := emit(cfg.Out, out, report); err != nil {
		return err
	}
	if cfg.RequireOracle && !report.OracleTriggered {
		return fmt.Errorf("%w: stopped with %s", ErrOracleNotTriggered, report.StopReason)
	}
	return nil
}

func writeCase(cfg Config, out io.Writer) error {
	data, err := os.ReadFile(cfg.Script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("script %s is not valid JSON", cfg.Script)
	}
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(cfg.Script), filepath.Ext(cfg.Script))
	}
	return emit(cfg.Out, out, repro.NewCase(title, json.RawMessage(data)))
}

func emit(path string, out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
