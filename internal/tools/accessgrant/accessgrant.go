// Package accessgrant generates MCP access grant key pairs and issues grants.
package accessgrant

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	platformcmd "github.com/louisbranch/talespin/internal/platform/cmd"
	"github.com/louisbranch/talespin/internal/services/mcp/grant"
)

// Config holds access grant tool configuration. Without a subject the tool
// prints a fresh key pair.
type Config struct {
	PrivateKey string        `env:"TALESPIN_MCP_GRANT_PRIVATE_KEY"`
	Issuer     string        `env:"TALESPIN_MCP_GRANT_ISSUER"   envDefault:"talespin"`
	Audience   string        `env:"TALESPIN_MCP_GRANT_AUDIENCE" envDefault:"talespin-mcp"`
	Subject    string        `env:"TALESPIN_MCP_GRANT_SUBJECT"`
	TTL        time.Duration `env:"TALESPIN_MCP_GRANT_TTL"      envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Subject, "subject", cfg.Subject, "issue a grant for this client instead of generating keys")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "grant lifetime")
	fs.StringVar(&cfg.Audience, "audience", cfg.Audience, "grant audience")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run either issues a grant or generates a key pair and writes exports.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.Subject != "" {
		return issue(cfg, out)
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate access grant key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export TALESPIN_MCP_GRANT_PRIVATE_KEY=%s\n", base64.RawStdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export TALESPIN_MCP_GRANT_PUBLIC_KEY=%s\n", base64.RawStdEncoding.EncodeToString(publicKey)); err != nil {
		return err
	}
	return nil
}

func issue(cfg Config, out io.Writer) error {
	if cfg.PrivateKey == "" {
		return errors.New("TALESPIN_MCP_GRANT_PRIVATE_KEY is required to issue grants")
	}
	key, err := grant.DecodePrivateKey(cfg.PrivateKey)
	if err != nil {
		return err
	}
	token, err := grant.Issue(key, grant.Request{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Subject:  cfg.Subject,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
