package save

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

// Sealed layout: "VNSA" | u16 version | u8 key id length | key id |
// 32-byte HMAC-SHA256 tag | inner save bytes.
const (
	SealedMagic   = "VNSA"
	SealedVersion = uint16(1)
)

// SealAuthenticated wraps a save with an HMAC under the active key. The key
// is derived per script so a tag never verifies against another story.
func SealAuthenticated(data []byte, keys *Keyring) ([]byte, error) {
	snapshot, err := Decode(data)
	if err != nil {
		return nil, err
	}
	tag, keyID, err := keys.sign(snapshot.ScriptID, data)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(SealedMagic)+3+len(keyID)+len(tag)+len(data))
	out = append(out, SealedMagic...)
	out = binary.LittleEndian.AppendUint16(out, SealedVersion)
	out = append(out, byte(len(keyID)))
	out = append(out, keyID...)
	out = append(out, tag...)
	return append(out, data...), nil
}

// OpenAuthenticated verifies a sealed save and returns the inner bytes.
func OpenAuthenticated(sealed []byte, keys *Keyring) ([]byte, error) {
	if len(sealed) < len(SealedMagic) || string(sealed[:len(SealedMagic)]) != SealedMagic {
		return nil, fmt.Errorf("%w: missing authentication envelope", ErrNotASaveFile)
	}
	rest := sealed[len(SealedMagic):]
	if len(rest) < 3 {
		return nil, fmt.Errorf("%w: truncated envelope", ErrCorrupt)
	}
	if version := binary.LittleEndian.Uint16(rest[:2]); version != SealedVersion {
		return nil, apperrors.WithMetadata(apperrors.CodeVersionUnsupported,
			fmt.Sprintf("sealed save version %d is not supported", version),
			map[string]string{"Version": strconv.Itoa(int(version))})
	}
	idLen := int(rest[2])
	rest = rest[3:]
	if len(rest) < idLen+sha256.Size {
		return nil, fmt.Errorf("%w: truncated envelope", ErrCorrupt)
	}
	keyID := string(rest[:idLen])
	tag := rest[idLen : idLen+sha256.Size]
	data := rest[idLen+sha256.Size:]

	snapshot, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := keys.verify(snapshot.ScriptID, data, tag, keyID); err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// IsSealed reports whether data carries an authentication envelope.
func IsSealed(data []byte) bool {
	return len(data) >= len(SealedMagic) && string(data[:len(SealedMagic)]) == SealedMagic
}
