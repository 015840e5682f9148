package save

import (
	"bytes"
	"testing"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/engine"
)

func testKeyring(t *testing.T, active string) *Keyring {
	t.Helper()
	keys, err := NewKeyring(map[string][]byte{
		"v1": []byte("root-key-one"),
		"v2": []byte("root-key-two"),
	}, active)
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	return keys
}

func TestSealOpenRoundTrip(t *testing.T) {
	e := playedEngine(t)
	data := mustSave(t, e)
	keys := testKeyring(t, "v2")

	sealed, err := SealAuthenticated(data, keys)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) || IsSealed(data) {
		t.Fatal("unexpected sealed detection")
	}
	opened, err := OpenAuthenticated(sealed, keys)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, data) {
		t.Fatal("opened bytes differ")
	}

	// Rotation: a keyring signing with v1 still opens v2 saves.
	if _, err := OpenAuthenticated(sealed, testKeyring(t, "v1")); err != nil {
		t.Fatalf("open after rotation: %v", err)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	e := playedEngine(t)
	keys := testKeyring(t, "v1")
	sealed, err := SealAuthenticated(mustSave(t, e), keys)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Rewrite the inner save with a forged state and a valid checksum.
	inner := sealed[len(sealed)-len(mustSave(t, e)):]
	state := e.State()
	state.Vars["counter"] = 999
	forgedInner, err := Encode(e.Script().ID(), state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	forged := append(clone(sealed[:len(sealed)-len(inner)]), forgedInner...)
	_, err = OpenAuthenticated(forged, keys)
	requireCode(t, err, apperrors.CodeAuthenticationFailed)

	other, err := NewKeyring(map[string][]byte{"v1": []byte("attacker")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	_, err = OpenAuthenticated(sealed, other)
	requireCode(t, err, apperrors.CodeAuthenticationFailed)

	unknown, err := NewKeyring(map[string][]byte{"v9": []byte("root-key-one")}, "v9")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	_, err = OpenAuthenticated(sealed, unknown)
	requireCode(t, err, apperrors.CodeAuthenticationFailed)

	_, err = OpenAuthenticated(mustSave(t, e), keys)
	requireCode(t, err, apperrors.CodeNotASaveFile)

	_, err = OpenAuthenticated(sealed[:8], keys)
	requireCode(t, err, apperrors.CodeCorrupt)
}

func TestSealBindsScript(t *testing.T) {
	keys := testKeyring(t, "v1")
	first := playedEngine(t)
	otherScript := compile(t, `{"script_schema_version":"1.0","events":[{"type":"dialogue","text":"x"}],"labels":{"start":0}}`)
	second, err := engine.New(otherScript)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	a, err := SealAuthenticated(mustSave(t, first), keys)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := SealAuthenticated(mustSave(t, second), keys)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	tagA := a[len(SealedMagic)+3+2 : len(SealedMagic)+3+2+32]
	tagB := b[len(SealedMagic)+3+2 : len(SealedMagic)+3+2+32]
	if bytes.Equal(tagA, tagB) {
		t.Fatal("tags should differ across scripts")
	}
}

func TestNewKeyringValidation(t *testing.T) {
	tests := []struct {
		name   string
		keys   map[string][]byte
		active string
	}{
		{name: "no keys", keys: nil, active: "v1"},
		{name: "no active", keys: map[string][]byte{"v1": []byte("k")}, active: " "},
		{name: "unknown active", keys: map[string][]byte{"v1": []byte("k")}, active: "v2"},
		{name: "empty key", keys: map[string][]byte{"v1": nil}, active: "v1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewKeyring(tc.keys, tc.active)
			requireCode(t, err, apperrors.CodeAuthKeyInvalid)
		})
	}

	var nilKeys *Keyring
	if nilKeys.ActiveKeyID() != "" {
		t.Fatal("nil keyring should have no active key")
	}
	_, err := SealAuthenticated(mustSave(t, playedEngine(t)), nilKeys)
	requireCode(t, err, apperrors.CodeAuthKeyInvalid)
}

func TestKeyringFromEnv(t *testing.T) {
	t.Setenv(EnvHMACKeys, "")
	t.Setenv(EnvHMACKey, "single-secret")
	t.Setenv(EnvHMACKeyID, "")
	keys, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if keys.ActiveKeyID() != "v1" {
		t.Fatalf("active key = %q", keys.ActiveKeyID())
	}

	t.Setenv(EnvHMACKeys, "old=aaa, new=bbb")
	t.Setenv(EnvHMACKeyID, "new")
	keys, err = KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if keys.ActiveKeyID() != "new" || len(keys.keys) != 2 {
		t.Fatalf("keyring = %+v", keys)
	}

	t.Setenv(EnvHMACKeys, "broken")
	_, err = KeyringFromEnv()
	requireCode(t, err, apperrors.CodeAuthKeyInvalid)

	t.Setenv(EnvHMACKeys, "")
	t.Setenv(EnvHMACKey, "")
	_, err = KeyringFromEnv()
	requireCode(t, err, apperrors.CodeAuthKeyInvalid)
}
