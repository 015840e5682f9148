// Package hmackey generates save signing keys in the environment format
// save.KeyringFromEnv reads.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/louisbranch/talespin/internal/story/save"
)

// Config holds configuration for HMAC key generation.
type Config struct {
	Bytes int
	// KeyID, when set, emits a rotation entry for TALESPIN_SAVE_HMAC_KEYS
	// instead of the single-key variable.
	KeyID string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes (default: 32)")
	fs.StringVar(&cfg.KeyID, "id", cfg.KeyID, "key id for a rotation entry")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the key and writes it to out.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	key := hex.EncodeToString(buf)

	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		_, err := fmt.Fprintf(out, "%s=%s\n", save.EnvHMACKey, key)
		return err
	}
	if strings.ContainsAny(keyID, "=,") {
		return errors.New("key id must not contain '=' or ','")
	}
	if _, err := save.NewKeyring(map[string][]byte{keyID: []byte(key)}, keyID); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%s=%s=%s\n%s=%s\n", save.EnvHMACKeys, keyID, key, save.EnvHMACKeyID, keyID)
	return err
}
