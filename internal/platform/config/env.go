package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Prefix namespaces every talespin environment variable.
const Prefix = "TALESPIN_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseScopedEnv loads configuration whose tags omit the TALESPIN_<SCOPE>_
// prefix, so shared structs can be reused under several scopes.
func ParseScopedEnv(target any, scope string) error {
	scope = strings.ToUpper(strings.TrimSpace(scope))
	if scope == "" {
		return fmt.Errorf("parse env: scope is required")
	}
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix + scope + "_"}); err != nil {
		return fmt.Errorf("parse env %s: %w", scope, err)
	}
	return nil
}
