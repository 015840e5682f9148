package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeAwaitingChoice, "awaiting choice")
	err := fmt.Errorf("step: %w", WithMetadata(CodeAwaitingChoice, "choice pending at 3", map[string]string{"Position": "3"}))

	if !stderrors.Is(err, sentinel) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeAlreadyFinished, "")) {
		t.Fatal("expected different code not to match")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodeIOFailure, "write slot", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "write slot: disk full" {
		t.Fatalf("error text = %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("wrapped: %w", New(CodeCorrupt, "bad checksum"))); got != CodeCorrupt {
		t.Fatalf("CodeOf = %s, want %s", got, CodeCorrupt)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf plain = %s, want %s", got, CodeUnknown)
	}
	if !HasCode(New(CodeCorrupt, ""), CodeCorrupt) {
		t.Fatal("expected HasCode to match")
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		code Code
		want Category
	}{
		{CodeMissingStartLabel, CategoryCompile},
		{CodeLimitExceeded, CategoryCompile},
		{CodeAwaitingChoice, CategoryRuntime},
		{CodeUnknownCharacter, CategoryRuntime},
		{CodeScriptMismatch, CategorySave},
		{CodeRecoveryFailed, CategorySave},
		{CodeAccessGrantExpired, CategoryAccess},
		{Code("SOMETHING_ELSE"), CategoryUnknown},
	}
	for _, tc := range tests {
		if got := tc.code.Category(); got != tc.want {
			t.Fatalf("%s.Category() = %s, want %s", tc.code, got, tc.want)
		}
	}
}
