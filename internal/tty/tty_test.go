// Package tty_test exercises the raw-mode console.
//
// The test is skipped when stdin is not a terminal (ErrNoTTY). Notably, this includes when run with
// "go test" because it redirects tests' standard input/output streams. You can test it by building a
// test binary and running it directly:
//
//	$ go test -c && ./tty.test
package tty_test

import (
	"errors"
	"os"
	"testing"

	"github.com/ralphjzhang/zemu/internal/tty"
)

func TestNewConsoleRawModeRoundTrip(t *testing.T) {
	console, err := tty.NewConsole(os.Stdin, os.Stdout)
	if errors.Is(err, tty.ErrNoTTY) {
		t.Skipf("stdin is not a terminal: %s", err)
	}

	if err != nil {
		t.Fatalf("NewConsole: %v", err)
	}

	defer console.Restore()

	if console.In() == nil {
		t.Error("In() returned nil")
	}

	if console.Out() == nil {
		t.Error("Out() returned nil")
	}
}

func TestNewConsoleRejectsNonTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	defer r.Close()
	defer w.Close()

	_, err = tty.NewConsole(r, w)
	if !errors.Is(err, tty.ErrNoTTY) {
		t.Errorf("NewConsole on a pipe: got %v, want ErrNoTTY", err)
	}
}
