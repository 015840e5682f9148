package id

import (
	"encoding/base32"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func decodeID(t *testing.T, id string) uuid.UUID {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("decode %q: %v", id, err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		t.Fatalf("uuid from bytes: %v", err)
	}
	return u
}

func TestNewIDIsLowercaseBase32UUID(t *testing.T) {
	got, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(got) != 26 || strings.ContainsAny(got, "=ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		t.Fatalf("id = %q", got)
	}
	u := decodeID(t, got)
	if u.Version() != 4 || u.Variant() != uuid.RFC4122 {
		t.Fatalf("uuid %s: version %d variant %s", u, u.Version(), u.Variant())
	}
}

func TestNewIDDoesNotRepeat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		got, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[got] {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = true
	}
}
