// Package tty puts the host terminal into raw mode so the guest's UART sees individual keystrokes
// rather than line-buffered input, and restores it on exit.
//
// Grounded on smoynes-elsie's internal/tty Console: raw-mode setup via golang.org/x/term,
// non-blocking read-deadline juggling and VMIN/VTIME configuration via golang.org/x/sys/unix
// termios ioctls. Adapted from a keyboard/display device pair to a single duplex byte stream: the
// UART package itself owns the background read loop (internal/uart.UART.Run), so Console here only
// sets up the raw terminal and exposes its input/output streams.
package tty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNoTTY is returned if standard input is not a terminal.
var ErrNoTTY error = errors.New("tty: not a TTY")

// Console is a raw-mode terminal session over the host's standard streams.
type Console struct {
	in    *os.File
	out   *os.File
	fd    int
	state *term.State
}

// NewConsole puts sin into raw mode and returns a Console over sin/sout. If sin is not a terminal,
// ErrNoTTY is returned and the terminal is left untouched. Callers must call Restore to return the
// terminal to its original state.
func NewConsole(sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTTY, err)
	}

	c := &Console{fd: fd, in: sin, out: sout, state: saved}

	if err := c.setTerminalParams(1, 0); err != nil {
		_ = term.Restore(fd, saved)
		return nil, err
	}

	return c, nil
}

// In returns the raw-mode input stream, suitable for feeding internal/uart.UART.Run.
func (c *Console) In() io.Reader { return c.in }

// Out returns the output stream the UART should write transmitted bytes to.
func (c *Console) Out() io.Writer { return c.out }

// Restore returns the terminal to the state it was in before NewConsole.
func (c *Console) Restore() {
	_ = c.in.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

// setTerminalParams configures VMIN/VTIME so reads block for exactly one byte at a time, matching
// the UART's one-byte-at-a-time receive contract.
func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = c.in.SetReadDeadline(time.Time{})

	return nil
}
