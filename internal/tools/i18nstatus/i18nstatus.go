// Package i18nstatus reports translation coverage of the embedded message
// catalogs against the base locale.
package i18nstatus

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	i18ncatalog "github.com/louisbranch/talespin/internal/platform/i18n/catalog"
)

// Config holds i18n status configuration.
type Config struct {
	BaseLocale string `env:"TALESPIN_I18N_BASE_LOCALE" envDefault:"en-US"`
	// JSONOut, when set, also writes the report as JSON to this path.
	JSONOut string `env:"TALESPIN_I18N_JSON_OUT"`
	// Strict fails when any locale misses base keys.
	Strict bool `env:"TALESPIN_I18N_STRICT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.BaseLocale, "base-locale", cfg.BaseLocale, "base locale used as translation source of truth")
	fs.StringVar(&cfg.JSONOut, "json-out", cfg.JSONOut, "json output path")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail when a locale is missing keys")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Report is the coverage of every locale.
type Report struct {
	BaseLocale string         `json:"base_locale"`
	Locales    []LocaleStatus `json:"locales"`
}

// LocaleStatus is the coverage of one locale.
type LocaleStatus struct {
	Locale      string            `json:"locale"`
	BaseKeys    int               `json:"base_keys"`
	Translated  int               `json:"translated"`
	Missing     int               `json:"missing"`
	Extra       int               `json:"extra"`
	Completion  float64           `json:"completion"`
	Namespaces  []NamespaceStatus `json:"namespaces"`
	MissingKeys []string          `json:"missing_keys"`
	ExtraKeys   []string          `json:"extra_keys"`
}

// NamespaceStatus is the coverage of one namespace within a locale.
type NamespaceStatus struct {
	Namespace  string  `json:"namespace"`
	BaseKeys   int     `json:"base_keys"`
	Translated int     `json:"translated"`
	Missing    int     `json:"missing"`
	Completion float64 `json:"completion"`
}

// Run builds the report for the embedded catalogs, prints a summary table
// to out and optionally writes JSON.
func Run(cfg Config, out io.Writer) error {
	bundle, err := i18ncatalog.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("load i18n catalogs: %w", err)
	}
	return run(bundle, cfg, out)
}

func run(bundle *i18ncatalog.Bundle, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	base := strings.TrimSpace(cfg.BaseLocale)
	if base == "" {
		base = i18ncatalog.BaseLocale
	}
	if !bundle.HasLocale(base) {
		return fmt.Errorf("base locale %q is missing from catalogs", base)
	}

	rep := BuildReport(bundle, base)
	writeSummary(out, rep)
	if cfg.JSONOut != "" {
		if err := writeJSON(cfg.JSONOut, rep); err != nil {
			return err
		}
	}
	if cfg.Strict {
		for _, locale := range rep.Locales {
			if locale.Missing > 0 {
				return fmt.Errorf("locale %s is missing %d keys", locale.Locale, locale.Missing)
			}
		}
	}
	return nil
}

// BuildReport compares every locale in bundle against base.
func BuildReport(bundle *i18ncatalog.Bundle, base string) Report {
	baseMessages := bundle.LocaleMessages(base)
	statuses := make([]LocaleStatus, 0)
	for _, locale := range bundle.Locales() {
		messages := bundle.LocaleMessages(locale)
		missing := diffKeys(baseMessages, messages)
		extra := diffKeys(messages, baseMessages)
		translated := len(baseMessages) - len(missing)

		namespaces := map[string]struct{}{}
		for _, ns := range bundle.Namespaces(base) {
			namespaces[ns] = struct{}{}
		}
		for _, ns := range bundle.Namespaces(locale) {
			namespaces[ns] = struct{}{}
		}
		nsStatuses := make([]NamespaceStatus, 0, len(namespaces))
		for _, ns := range sortedKeys(namespaces) {
			baseNS := bundle.NamespaceMessages(base, ns)
			nsMissing := diffKeys(baseNS, bundle.NamespaceMessages(locale, ns))
			nsTranslated := len(baseNS) - len(nsMissing)
			nsStatuses = append(nsStatuses, NamespaceStatus{
				Namespace:  ns,
				BaseKeys:   len(baseNS),
				Translated: nsTranslated,
				Missing:    len(nsMissing),
				Completion: percent(nsTranslated, len(baseNS)),
			})
		}

		statuses = append(statuses, LocaleStatus{
			Locale:      locale,
			BaseKeys:    len(baseMessages),
			Translated:  translated,
			Missing:     len(missing),
			Extra:       len(extra),
			Completion:  percent(translated, len(baseMessages)),
			Namespaces:  nsStatuses,
			MissingKeys: missing,
			ExtraKeys:   extra,
		})
	}
	return Report{BaseLocale: base, Locales: statuses}
}

func writeSummary(out io.Writer, rep Report) {
	fmt.Fprintf(out, "base locale %s\n", rep.BaseLocale)
	for _, locale := range rep.Locales {
		fmt.Fprintf(out, "%-8s %3d/%-3d %5.1f%% missing=%d extra=%d\n",
			locale.Locale, locale.Translated, locale.BaseKeys, locale.Completion, locale.Missing, locale.Extra)
		for _, key := range locale.MissingKeys {
			fmt.Fprintf(out, "  missing %s\n", key)
		}
	}
}

func writeJSON(path string, rep Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// diffKeys returns the keys of a that b lacks, sorted.
func diffKeys(a, b map[string]string) []string {
	out := make([]string, 0)
	for key := range a {
		if _, ok := b[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(entries map[string]struct{}) []string {
	out := make([]string, 0, len(entries))
	for key := range entries {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func percent(numerator, denominator int) float64 {
	if denominator <= 0 {
		return 100
	}
	value := float64(numerator) * 100 / float64(denominator)
	return math.Round(value*10) / 10
}
