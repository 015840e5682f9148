package policy

import (
	"fmt"

	"github.com/louisbranch/talespin/internal/platform/config"
)

// FromEnv loads a policy from TALESPIN_POLICY_* variables, falling back to
// the stock defaults for anything unset.
func FromEnv() (Policy, error) {
	var p Policy
	if err := config.ParseScopedEnv(&p, "POLICY"); err != nil {
		return Policy{}, err
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy from env: %w", err)
	}
	return p, nil
}
