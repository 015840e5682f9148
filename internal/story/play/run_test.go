package play

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunHostLoop(t *testing.T) {
	s := newSession(t, Options{Store: openStore(t)})
	input := strings.Join([]string{
		"",
		":qs",
		"1",
		"",
		"",
		":ql",
		"9",
		":save 1000",
		":bogus",
		":slots",
		":quit",
		"2",
	}, "\n")
	var out bytes.Buffer
	if err := Run(context.Background(), s, strings.NewReader(input), &out, "en-US"); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{
		"Ava: Hello",
		"Go?",
		"1. Yes",
		"2. No",
		"Saved to slot quick",
		"Ava: The end",
		"The End",
		"Error: The story has already finished",
		"Loaded slot quick",
		"Go?",
		"Error: Option 8 is not available",
		"Error: Slot 1000 is not a valid save slot",
		"Unknown command: :bogus",
		"Slot quick  @1",
	}
	got := out.String()
	rest := got
	for _, line := range want {
		idx := strings.Index(rest, line)
		if idx < 0 {
			t.Fatalf("output missing %q after previous lines:\n%s", line, got)
		}
		rest = rest[idx+len(line):]
	}
	if s.State().Position != 1 {
		t.Fatalf("position = %d, input after :quit was applied", s.State().Position)
	}
}

func TestRunWithoutStoreReportsError(t *testing.T) {
	s := newSession(t, Options{})
	var out bytes.Buffer
	if err := Run(context.Background(), s, strings.NewReader(":qs\n"), &out, "en-US"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Error: no save slot store configured") {
		t.Fatalf("output = %q", out.String())
	}
}
