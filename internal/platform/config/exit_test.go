package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesAndExitsWithCode1(t *testing.T) {
	var out bytes.Buffer
	code := -1
	restore := swapExit(&out, func(c int) { code = c })
	defer restore()

	Exitf("fatal: %s", "something broke")

	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if out.String() != "fatal: something broke\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestExitCodef(t *testing.T) {
	var out bytes.Buffer
	code := -1
	restore := swapExit(&out, func(c int) { code = c })
	defer restore()

	ExitCodef(3, "scenario failed")

	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

func swapExit(out *bytes.Buffer, fn func(int)) func() {
	prevWriter, prevFunc := exitWriter, exitFunc
	exitWriter, exitFunc = out, fn
	return func() {
		exitWriter, exitFunc = prevWriter, prevFunc
	}
}
