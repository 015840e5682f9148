package save

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/encoding"
)

// Keyring stores root HMAC keys and the active key id.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for sealing and opening saves.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, "hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, "active hmac key id is required")
	}
	if len(activeKeyID) > 255 {
		return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, "active hmac key id is too long")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, "active hmac key id is not configured")
	}
	copied := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) == 0 {
			return nil, apperrors.New(apperrors.CodeAuthKeyInvalid, fmt.Sprintf("hmac key %q is empty", id))
		}
		copied[id] = append([]byte(nil), key...)
	}
	return &Keyring{keys: copied, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the configured signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// sign returns the tag for data under the active key.
func (k *Keyring) sign(scriptID encoding.Digest, data []byte) ([]byte, string, error) {
	if k == nil {
		return nil, "", apperrors.New(apperrors.CodeAuthKeyInvalid, "hmac keyring is not configured")
	}
	key, err := deriveScriptKey(k.keys[k.activeKeyID], scriptID)
	if err != nil {
		return nil, "", err
	}
	return hmacSHA256(key, data), k.activeKeyID, nil
}

// verify checks tag for data under keyID.
func (k *Keyring) verify(scriptID encoding.Digest, data, tag []byte, keyID string) error {
	if k == nil {
		return apperrors.New(apperrors.CodeAuthKeyInvalid, "hmac keyring is not configured")
	}
	rootKey, ok := k.keys[keyID]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeAuthenticationFailed,
			fmt.Sprintf("signature key id %q is unknown", keyID), map[string]string{"Key": keyID})
	}
	key, err := deriveScriptKey(rootKey, scriptID)
	if err != nil {
		return err
	}
	if !hmac.Equal(hmacSHA256(key, data), tag) {
		return apperrors.New(apperrors.CodeAuthenticationFailed, "signature mismatch")
	}
	return nil
}

func deriveScriptKey(rootKey []byte, scriptID encoding.Digest) ([]byte, error) {
	key, err := hkdf.Key(sha256.New, rootKey, nil, "script:"+scriptID.Hex(), 32)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAuthKeyInvalid, "derive script key", err)
	}
	return key, nil
}

func hmacSHA256(key, value []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(value)
	return mac.Sum(nil)
}
