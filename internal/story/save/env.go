package save

import (
	"fmt"
	"strings"

	"github.com/louisbranch/talespin/internal/platform/config"
	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

// Environment variables read by KeyringFromEnv.
const (
	EnvHMACKeys  = "TALESPIN_SAVE_HMAC_KEYS"
	EnvHMACKey   = "TALESPIN_SAVE_HMAC_KEY"
	EnvHMACKeyID = "TALESPIN_SAVE_HMAC_KEY_ID"
)

type keyringEnv struct {
	Keys  string `env:"TALESPIN_SAVE_HMAC_KEYS"`
	Key   string `env:"TALESPIN_SAVE_HMAC_KEY"`
	KeyID string `env:"TALESPIN_SAVE_HMAC_KEY_ID" envDefault:"v1"`
}

// KeyringFromEnv loads the save keyring. TALESPIN_SAVE_HMAC_KEYS holds
// "id=value" pairs separated by commas and wins over the single
// TALESPIN_SAVE_HMAC_KEY.
func KeyringFromEnv() (*Keyring, error) {
	var cfg keyringEnv
	if err := config.ParseEnv(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAuthKeyInvalid, "load keyring env", err)
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		keyID = "v1"
	}

	keySpec := strings.TrimSpace(cfg.Keys)
	if keySpec == "" {
		raw := strings.TrimSpace(cfg.Key)
		if raw == "" {
			return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, EnvHMACKey+" is required")
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(keySpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, fmt.Sprintf("invalid %s entry", EnvHMACKeys))
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
