// Package localization resolves "loc:" keys embedded in script text.
package localization

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/script"
)

// Prefix marks a script string as a catalog key.
const Prefix = "loc:"

// IssueKind classifies a catalog validation problem.
type IssueKind string

const (
	MissingKey IssueKind = "missing_key"
	OrphanKey  IssueKind = "orphan_key"
)

// Issue is one validation finding.
type Issue struct {
	Locale string    `json:"locale"`
	Key    string    `json:"key"`
	Kind   IssueKind `json:"kind"`
}

// Catalog holds one string table per locale.
type Catalog struct {
	DefaultLocale string
	tables        map[string]map[string]string
}

// New returns an empty catalog falling back to defaultLocale.
func New(defaultLocale string) *Catalog {
	return &Catalog{DefaultLocale: defaultLocale, tables: map[string]map[string]string{}}
}

type catalogFile struct {
	DefaultLocale string                       `json:"default_locale"`
	Locales       map[string]map[string]string `json:"locales"`
}

// Load reads a JSON catalog of the form
// {"default_locale":"en","locales":{"en":{"key":"text"}}}.
func Load(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode localization catalog: %w", err)
	}
	if strings.TrimSpace(file.DefaultLocale) == "" {
		return nil, fmt.Errorf("localization catalog default_locale is required")
	}
	c := New(file.DefaultLocale)
	for locale, table := range file.Locales {
		c.Insert(locale, table)
	}
	return c, nil
}

// Insert replaces the table for locale.
func (c *Catalog) Insert(locale string, entries map[string]string) {
	table := make(map[string]string, len(entries))
	for k, v := range entries {
		table[k] = v
	}
	c.tables[locale] = table
}

// Locales returns the locales with tables, sorted.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.tables))
	for locale := range c.tables {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Resolve looks key up in locale, then in the closest matching locale, then
// in the default locale.
func (c *Catalog) Resolve(locale, key string) (string, bool) {
	if table, ok := c.tables[locale]; ok {
		if value, ok := table[key]; ok {
			return value, true
		}
	}
	if matched, ok := c.match(locale); ok && matched != locale {
		if value, ok := c.tables[matched][key]; ok {
			return value, true
		}
	}
	value, ok := c.tables[c.DefaultLocale][key]
	return value, ok
}

// ResolveOrKey returns the resolved text or key itself.
func (c *Catalog) ResolveOrKey(locale, key string) string {
	if value, ok := c.Resolve(locale, key); ok {
		return value
	}
	return key
}

// Text resolves a script string: "loc:" values are looked up, anything
// else is returned unchanged.
func (c *Catalog) Text(locale, value string) string {
	key, ok := Key(value)
	if !ok {
		return value
	}
	return c.ResolveOrKey(locale, key)
}

func (c *Catalog) match(locale string) (string, bool) {
	requested, err := language.Parse(locale)
	if err != nil {
		return "", false
	}
	locales := c.Locales()
	tags := make([]language.Tag, 0, len(locales))
	names := make([]string, 0, len(locales))
	for _, name := range locales {
		tag, err := language.Parse(name)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		names = append(names, name)
	}
	if len(tags) == 0 {
		return "", false
	}
	_, index, confidence := language.NewMatcher(tags).Match(requested)
	if confidence == language.No {
		return "", false
	}
	return names[index], true
}

// Validate compares every table against required keys.
func (c *Catalog) Validate(required []string) []Issue {
	want := make(map[string]struct{}, len(required))
	for _, key := range required {
		if key = strings.TrimSpace(key); key != "" {
			want[key] = struct{}{}
		}
	}
	var issues []Issue
	for locale, table := range c.tables {
		for key := range want {
			if _, ok := table[key]; !ok {
				issues = append(issues, Issue{Locale: locale, Key: key, Kind: MissingKey})
			}
		}
		for key := range table {
			if _, ok := want[key]; !ok {
				issues = append(issues, Issue{Locale: locale, Key: key, Kind: OrphanKey})
			}
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Locale != issues[j].Locale {
			return issues[i].Locale < issues[j].Locale
		}
		if issues[i].Key != issues[j].Key {
			return issues[i].Key < issues[j].Key
		}
		return issues[i].Kind < issues[j].Kind
	})
	return issues
}

// Key extracts the catalog key from a "loc:" value.
func Key(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, Prefix) {
		return "", false
	}
	key := strings.TrimSpace(strings.TrimPrefix(trimmed, Prefix))
	return key, key != ""
}

// CollectKeys returns the sorted, unique keys a script references from
// dialogue and choice text.
func CollectKeys(c *script.Compiled) []string {
	seen := map[string]struct{}{}
	add := func(value string) {
		if key, ok := Key(value); ok {
			seen[key] = struct{}{}
		}
	}
	for _, ev := range c.Events() {
		switch e := ev.(type) {
		case event.Dialogue:
			add(e.Speaker)
			add(e.Text)
		case event.Choice:
			add(e.Prompt)
			for _, option := range e.Options {
				add(option.Text)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Localize returns ev with its "loc:" strings resolved for locale. Events
// without player-facing text are returned unchanged.
func (c *Catalog) Localize(ev event.Event, locale string) event.Event {
	switch e := ev.(type) {
	case event.Dialogue:
		e.Speaker = c.Text(locale, e.Speaker)
		e.Text = c.Text(locale, e.Text)
		return e
	case event.Choice:
		options := make([]event.Option, len(e.Options))
		for i, option := range e.Options {
			options[i] = event.Option{Text: c.Text(locale, option.Text), Target: option.Target}
		}
		e.Prompt = c.Text(locale, e.Prompt)
		e.Options = options
		return e
	default:
		return ev
	}
}
