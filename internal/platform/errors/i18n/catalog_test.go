package i18n

import (
	"fmt"
	"testing"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[apperrors.Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[apperrors.Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[apperrors.Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}

func TestUserMessage(t *testing.T) {
	err := apperrors.WithMetadata(apperrors.CodeUnknownCharacter, "update unknown character", map[string]string{"Name": "Ava"})
	wrapped := fmt.Errorf("step: %w", err)

	tests := []struct {
		name   string
		err    error
		locale string
		want   string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: fmt.Errorf("boom"), want: "boom"},
		{name: "en-US", err: wrapped, locale: "en-US", want: "Character Ava is not on stage"},
		{name: "pt-BR", err: wrapped, locale: "pt-BR", want: "O personagem Ava não está em cena"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := UserMessage(tc.err, tc.locale); got != tc.want {
				t.Fatalf("UserMessage() = %q, want %q", got, tc.want)
			}
		})
	}
}
