// Package policy bounds what the compiler accepts from a story script.
package policy

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

// TrustMode controls whether asset references are path-sanitized.
type TrustMode string

const (
	Trusted   TrustMode = "trusted"
	Untrusted TrustMode = "untrusted"
)

// UnmarshalText parses a trust mode name.
func (m *TrustMode) UnmarshalText(text []byte) error {
	switch mode := TrustMode(strings.ToLower(strings.TrimSpace(string(text)))); mode {
	case Trusted, Untrusted:
		*m = mode
		return nil
	case "":
		*m = Untrusted
		return nil
	default:
		return fmt.Errorf("unknown trust mode %q", string(text))
	}
}

// Limit kinds reported in LIMIT_EXCEEDED metadata.
const (
	LimitEvents             = "max_events"
	LimitTextLength         = "max_text_length"
	LimitLabelLength        = "max_label_length"
	LimitAssetRefLength     = "max_asset_ref_length"
	LimitChoiceOptions      = "max_choice_options"
	LimitCharactersPerScene = "max_characters_per_scene"
	LimitScriptBytes        = "max_script_bytes"
)

// Limits are the resource bounds enforced at compile time. Text lengths are
// counted in runes.
type Limits struct {
	MaxEvents             int `env:"MAX_EVENTS" envDefault:"10000"`
	MaxTextLength         int `env:"MAX_TEXT_LENGTH" envDefault:"4096"`
	MaxLabelLength        int `env:"MAX_LABEL_LENGTH" envDefault:"64"`
	MaxAssetRefLength     int `env:"MAX_ASSET_REF_LENGTH" envDefault:"128"`
	MaxChoiceOptions      int `env:"MAX_CHOICE_OPTIONS" envDefault:"16"`
	MaxCharactersPerScene int `env:"MAX_CHARACTERS_PER_SCENE" envDefault:"32"`
	MaxScriptBytes        int `env:"MAX_SCRIPT_BYTES" envDefault:"524288"`
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxEvents:             10000,
		MaxTextLength:         4096,
		MaxLabelLength:        64,
		MaxAssetRefLength:     128,
		MaxChoiceOptions:      16,
		MaxCharactersPerScene: 32,
		MaxScriptBytes:        512 * 1024,
	}
}

// Policy is consulted by the compiler before a script is accepted.
type Policy struct {
	Trust  TrustMode `env:"TRUST" envDefault:"untrusted"`
	Limits Limits
	// Assets, when set, must accept every asset reference.
	Assets AssetResolver
}

// Default returns an untrusted policy with stock limits.
func Default() Policy {
	return Policy{Trust: Untrusted, Limits: DefaultLimits()}
}

// Validate rejects non-positive limits.
func (p Policy) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{LimitEvents, p.Limits.MaxEvents},
		{LimitTextLength, p.Limits.MaxTextLength},
		{LimitLabelLength, p.Limits.MaxLabelLength},
		{LimitAssetRefLength, p.Limits.MaxAssetRefLength},
		{LimitChoiceOptions, p.Limits.MaxChoiceOptions},
		{LimitCharactersPerScene, p.Limits.MaxCharactersPerScene},
		{LimitScriptBytes, p.Limits.MaxScriptBytes},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("policy %s must be positive, got %d", check.name, check.value)
		}
	}
	switch p.Trust {
	case Trusted, Untrusted:
		return nil
	default:
		return fmt.Errorf("policy trust mode %q is invalid", string(p.Trust))
	}
}

// CheckLimit returns LIMIT_EXCEEDED when got is above limit.
func CheckLimit(kind string, limit, got int) error {
	if got <= limit {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeLimitExceeded,
		fmt.Sprintf("%s exceeded: %d > %d", kind, got, limit),
		map[string]string{"Kind": kind, "Limit": strconv.Itoa(limit)})
}

// CheckText enforces the text length limit in bytes.
func (p Policy) CheckText(text string) error {
	return CheckLimit(LimitTextLength, p.Limits.MaxTextLength, len(text))
}

// CheckLabel enforces the label length limit in bytes.
func (p Policy) CheckLabel(label string) error {
	return CheckLimit(LimitLabelLength, p.Limits.MaxLabelLength, len(label))
}

// CheckAsset enforces length, path shape in untrusted mode, and the
// optional resolver.
func (p Policy) CheckAsset(ref string) error {
	if err := CheckLimit(LimitAssetRefLength, p.Limits.MaxAssetRefLength, len(ref)); err != nil {
		return err
	}
	if p.Trust != Trusted {
		if err := CheckAssetPath(ref); err != nil {
			return err
		}
	}
	if p.Assets != nil {
		if err := p.Assets.Resolve(ref); err != nil {
			return err
		}
	}
	return nil
}
