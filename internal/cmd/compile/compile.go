// Package compile checks a story script and writes its compiled binary.
package compile

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/louisbranch/talespin/internal/cmd/storyenv"
	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	errori18n "github.com/louisbranch/talespin/internal/platform/errors/i18n"
	"github.com/louisbranch/talespin/internal/story/localization"
	"github.com/louisbranch/talespin/internal/story/script"
)

// Config holds compile command configuration.
type Config struct {
	Script  string `env:"TALESPIN_COMPILE_SCRIPT"`
	Out     string `env:"TALESPIN_COMPILE_OUT"`
	Migrate bool   `env:"TALESPIN_COMPILE_MIGRATE"`
	Story   storyenv.Config
}

// ParseConfig parses environment and flags into a Config. A positional
// argument names the script when -script is not set.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Script, "script", cfg.Script, "path to the story script JSON")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "write the compiled binary to this path")
	fs.BoolVar(&cfg.Migrate, "migrate", cfg.Migrate, "print the schema migration report")
	cfg.Story.Bind(fs)
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Script == "" && fs.NArg() > 0 {
		cfg.Script = fs.Arg(0)
	}
	return cfg, nil
}

// Run compiles cfg.Script and reports the result on out. Compile failures
// are rendered in cfg.Story.Locale.
func Run(_ context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Script == "" {
		return errors.New("script path is required")
	}
	data, err := os.ReadFile(cfg.Script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	p, err := cfg.Story.Policy()
	if err != nil {
		return err
	}

	if cfg.Migrate {
		_, report, err := script.Migrate(data)
		if err != nil {
			return describe(err, cfg.Story.Locale)
		}
		fmt.Fprintf(out, "schema %s -> %s\n", report.FromVersion, report.ToVersion)
		for _, step := range report.Steps {
			fmt.Fprintf(out, "  %s (%s -> %s) changed=%t\n", step.StepID, step.FromVersion, step.ToVersion, step.Changed)
		}
	}

	compiled, err := script.Compile(data, p)
	if err != nil {
		return describe(err, cfg.Story.Locale)
	}
	fmt.Fprintf(out, "compiled %d events, %d labels, id %s\n", compiled.Len(), len(compiled.Labels()), compiled.ID().Hex())

	if cfg.Story.Catalog != "" {
		if err := checkCatalog(cfg.Story.Catalog, compiled, errOut); err != nil {
			return err
		}
	}
	if cfg.Out != "" {
		if err := os.WriteFile(cfg.Out, compiled.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write compiled script: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", cfg.Out)
	}
	return nil
}

// ErrCatalogIncomplete is returned when the catalog misses script keys.
var ErrCatalogIncomplete = errors.New("localization catalog is missing keys")

func checkCatalog(path string, compiled *script.Compiled, errOut io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open localization catalog: %w", err)
	}
	defer f.Close()
	catalog, err := localization.Load(f)
	if err != nil {
		return err
	}
	missing := 0
	for _, issue := range catalog.Validate(localization.CollectKeys(compiled)) {
		fmt.Fprintf(errOut, "%s %s: %s\n", issue.Locale, issue.Kind, issue.Key)
		if issue.Kind == localization.MissingKey {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d", ErrCatalogIncomplete, missing)
	}
	return nil
}

func describe(err error, locale string) error {
	return fmt.Errorf("%s [%s]: %w", errori18n.UserMessage(err, locale), apperrors.CodeOf(err), err)
}
