// Package grant issues and verifies access grants for the MCP HTTP
// transport. A grant is an EdDSA-signed JWT naming the client it was issued
// to; the server only needs the public key to admit it.
package grant

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/platform/id"
)

const (
	// DefaultIssuer names grants minted by the mcp-grant tool.
	DefaultIssuer = "talespin"
	// DefaultAudience is the audience the MCP server expects.
	DefaultAudience = "talespin-mcp"
	// DefaultTTL bounds a grant when the issuer does not.
	DefaultTTL = 24 * time.Hour
)

// verifierEnv holds raw env values before post-parse validation.
type verifierEnv struct {
	Issuer    string `env:"TALESPIN_MCP_GRANT_ISSUER"   envDefault:"talespin"`
	Audience  string `env:"TALESPIN_MCP_GRANT_AUDIENCE" envDefault:"talespin-mcp"`
	PublicKey string `env:"TALESPIN_MCP_GRANT_PUBLIC_KEY"`
}

// Config defines how grants are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Claims are the validated claims of a grant.
type Claims struct {
	Issuer    string
	Audience  []string
	Subject   string
	ExpiresAt time.Time
	NotBefore time.Time
	IssuedAt  time.Time
	JWTID     string
}

// LoadConfigFromEnv reads verification settings. It returns nil when no
// public key is configured, meaning grants are disabled.
func LoadConfigFromEnv(now func() time.Time) (*Config, error) {
	var raw verifierEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse access grant env: %w", err)
	}
	publicKey := strings.TrimSpace(raw.PublicKey)
	if publicKey == "" {
		return nil, nil
	}
	key, err := DecodePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Config{
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		Key:      key,
		Now:      now,
	}, nil
}

// DecodePublicKey parses a base64 Ed25519 public key.
func DecodePublicKey(value string) (ed25519.PublicKey, error) {
	keyBytes, err := decodeBase64(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode access grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("access grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(keyBytes), nil
}

// DecodePrivateKey parses a base64 Ed25519 private key.
func DecodePrivateKey(value string) (ed25519.PrivateKey, error) {
	keyBytes, err := decodeBase64(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode access grant private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("access grant private key must be %d bytes", ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(keyBytes), nil
}

// Request describes a grant to issue.
type Request struct {
	Issuer   string
	Audience string
	Subject  string
	TTL      time.Duration
	Now      func() time.Time
}

// Issue signs a grant for req.Subject.
func Issue(key ed25519.PrivateKey, req Request) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.New("access grant signing key is not configured")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return "", errors.New("access grant subject is required")
	}
	if req.Issuer == "" {
		req.Issuer = DefaultIssuer
	}
	if req.Audience == "" {
		req.Audience = DefaultAudience
	}
	if req.TTL <= 0 {
		req.TTL = DefaultTTL
	}
	if req.Now == nil {
		req.Now = time.Now
	}
	jti, err := id.NewID()
	if err != nil {
		return "", err
	}

	now := req.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    req.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{req.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(req.TTL)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access grant: %w", err)
	}
	return token, nil
}

// Validate verifies a grant token against cfg.
func Validate(token string, cfg Config) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("access grant verifier is not configured")
	}

	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeAccessGrantMismatch,
			"access grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeAccessGrantMismatch,
			"access grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant sub is required")
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeAccessGrantExpired, "access grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant not active yet")
	}

	claims := Claims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		Subject:   parsed.Subject,
		ExpiresAt: exp,
		JWTID:     parsed.ID,
	}
	if parsed.NotBefore != nil {
		claims.NotBefore = parsed.NotBefore.Time.UTC()
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeAccessGrantInvalid, "access grant is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
