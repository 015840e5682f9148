// Package storyenv loads the story runtime settings shared by the play and
// mcp commands: compile policy, slot database, save sealing and localization.
package storyenv

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/louisbranch/talespin/internal/platform/config"
	"github.com/louisbranch/talespin/internal/story/localization"
	"github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/render"
	"github.com/louisbranch/talespin/internal/story/save"
	"github.com/louisbranch/talespin/internal/story/storage"
	"github.com/louisbranch/talespin/internal/story/storage/sqlite"
)

// Config holds the shared story runtime configuration.
type Config struct {
	SlotsDB string `env:"TALESPIN_SLOTS_DB"          envDefault:"talespin-slots.db"`
	Locale  string `env:"TALESPIN_LOCALE"            envDefault:"en-US"`
	Catalog string `env:"TALESPIN_LOCALIZATION_FILE"`
	// Sealed signs saves with the keyring from TALESPIN_SAVE_HMAC_KEY(S).
	Sealed bool `env:"TALESPIN_SAVE_SEALED"`
	// Assets names a manifest file with one allowed asset reference per line.
	Assets string `env:"TALESPIN_ASSET_MANIFEST"`
	// Trust overrides TALESPIN_POLICY_TRUST when set.
	Trust string
}

// Load reads the environment defaults.
func Load() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Bind registers flag overrides for cfg on fs.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.SlotsDB, "slots", c.SlotsDB, "path to the save slot database")
	fs.StringVar(&c.Locale, "locale", c.Locale, "player locale")
	fs.StringVar(&c.Catalog, "catalog", c.Catalog, "path to a localization catalog JSON file")
	fs.BoolVar(&c.Sealed, "sealed", c.Sealed, "seal saves with the HMAC keyring from the environment")
	fs.StringVar(&c.Assets, "assets", c.Assets, "path to an asset manifest, one reference per line")
	fs.StringVar(&c.Trust, "trust", c.Trust, "script trust mode: trusted or untrusted")
}

// Policy loads the compile policy from TALESPIN_POLICY_* and applies the
// trust and asset manifest overrides.
func (c Config) Policy() (policy.Policy, error) {
	p, err := policy.FromEnv()
	if err != nil {
		return policy.Policy{}, err
	}
	if strings.TrimSpace(c.Trust) != "" {
		if err := p.Trust.UnmarshalText([]byte(c.Trust)); err != nil {
			return policy.Policy{}, err
		}
	}
	if c.Assets != "" {
		manifest, err := LoadManifest(c.Assets)
		if err != nil {
			return policy.Policy{}, err
		}
		p.Assets = manifest
	}
	return p, nil
}

// LoadManifest reads one asset reference per line, skipping blanks and
// lines starting with '#'.
func LoadManifest(path string) (policy.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset manifest: %w", err)
	}
	defer f.Close()

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read asset manifest: %w", err)
	}
	return policy.NewManifest(refs...), nil
}

// Runtime is an opened story runtime. Close releases the slot store.
type Runtime struct {
	Policy  policy.Policy
	Session play.Options
	store   *sqlite.Store
}

// Open builds the runtime: policy, keyring, slot store and presentation.
func (c Config) Open(logger *log.Logger) (*Runtime, error) {
	p, err := c.Policy()
	if err != nil {
		return nil, err
	}
	opts := play.Options{
		Renderer: render.NewTextRenderer(c.Locale),
		Locale:   c.Locale,
		Logger:   logger,
	}

	decoder := storage.PlainDecoder
	if c.Sealed {
		keys, err := save.KeyringFromEnv()
		if err != nil {
			return nil, err
		}
		opts.Keys = keys
		decoder = storage.SealedDecoder(keys)
	}

	if c.Catalog != "" {
		f, err := os.Open(c.Catalog)
		if err != nil {
			return nil, fmt.Errorf("open localization catalog: %w", err)
		}
		catalog, err := localization.Load(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		opts.Localization = catalog
	}

	rt := &Runtime{Policy: p, Session: opts}
	if c.SlotsDB != "" {
		store, err := sqlite.Open(c.SlotsDB, sqlite.WithDecoder(decoder))
		if err != nil {
			return nil, err
		}
		rt.store = store
		rt.Session.Store = store
	}
	return rt, nil
}

// Close releases the slot store.
func (r *Runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}
