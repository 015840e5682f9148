// Package i18n renders user-facing messages for domain error codes.
package i18n

import (
	"bytes"
	stderrors "errors"
	"strings"
	"sync"
	"text/template"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	i18ncatalog "github.com/louisbranch/talespin/internal/platform/i18n/catalog"
)

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[apperrors.Code]string
}

var (
	catalogsMu sync.RWMutex
	// catalogs holds override and runtime-built catalogs by locale.
	catalogs = map[string]*Catalog{}
)

// GetCatalog returns the catalog for the given locale.
// Falls back to en-US if the locale is not found.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = i18ncatalog.BaseLocale
	}

	if c, ok := lookupCatalog(requested); ok {
		return c
	}

	resolvedLocale, messages := i18ncatalog.Default().NamespaceMessagesWithFallback(requested, i18ncatalog.NamespaceErrors)
	if c, ok := lookupCatalog(resolvedLocale); ok {
		return c
	}

	built := NewCatalog(resolvedLocale, toCodeMap(messages))
	return storeCatalogIfAbsent(resolvedLocale, built)
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template with the given metadata.
// Falls back to the error code itself if no template is found.
func (c *Catalog) Format(code apperrors.Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return string(code)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// UserMessage renders err for players. Errors without a domain code fall
// back to their own text.
func UserMessage(err error, locale string) string {
	if err == nil {
		return ""
	}
	var domainErr *apperrors.Error
	if !stderrors.As(err, &domainErr) {
		return err.Error()
	}
	return GetCatalog(locale).Format(domainErr.Code, domainErr.Metadata)
}

// RegisterCatalog registers a new catalog for the given locale.
// Callers should only use this during init or in test setup.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[locale] = cat
}

// NewCatalog creates a new catalog with the given locale and messages.
func NewCatalog(locale string, messages map[apperrors.Code]string) *Catalog {
	cloned := make(map[apperrors.Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{
		locale:   locale,
		messages: cloned,
	}
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

func storeCatalogIfAbsent(locale string, candidate *Catalog) *Catalog {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	if existing, ok := catalogs[locale]; ok {
		return existing
	}
	catalogs[locale] = candidate
	return candidate
}

func toCodeMap(messages map[string]string) map[apperrors.Code]string {
	out := make(map[apperrors.Code]string, len(messages))
	for key, value := range messages {
		out[apperrors.Code(key)] = value
	}
	return out
}
