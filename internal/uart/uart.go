// Package uart implements the 16550-subset serial console used as the guest's console device.
//
// Grounded on smoynes-elsie's internal/vm/kbd.go Keyboard: a mutex plus sync.Cond guarding a
// status/data register pair, with the background feeder blocking in Update until the ready flag
// is clear and the hart-side Read draining the buffer and broadcasting the waiter. The host-thread
// reader loop itself is grounded on internal/tty/tty.go's Console.readTerminal (one blocking byte
// read at a time, forwarded to the device).
package uart

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ralphjzhang/zemu/internal/exception"
	"github.com/ralphjzhang/zemu/internal/log"
)

// Register offsets within the UART's 256-byte window.
const (
	RHRTHROffset = 0x0 // Receiver Holding Register / Transmitter Holding Register.
	LCROffset    = 0x3 // Line Control Register.
	LSROffset    = 0x5 // Line Status Register.
)

// LSR bit fields.
const (
	LSRRxReady = uint8(1 << 0)
	LSRTxReady = uint8(1 << 5)
)

// IRQ is the PLIC interrupt line the UART is wired to.
const IRQ = 10

// UART is a 16550-subset serial port. A dedicated goroutine, started with Run, feeds bytes from a
// host input stream into the receive register one at a time; the hart drains RHR and the goroutine
// blocks until it does.
type UART struct {
	mut   sync.Mutex
	empty *sync.Cond

	reg          [256]byte
	interrupting bool

	out io.Writer
	log *log.Logger
}

// New creates a UART that writes transmitted bytes to out (typically os.Stdout).
func New(out io.Writer) *UART {
	if out == nil {
		out = os.Stdout
	}

	u := &UART{out: out, log: log.DefaultLogger()}
	u.empty = sync.NewCond(&u.mut)
	u.reg[LSROffset] = LSRTxReady

	return u
}

// WithLogger reconfigures the UART's logger.
func (u *UART) WithLogger(l *log.Logger) { u.log = l }

// Run reads bytes one at a time from in and feeds them to the receive register, blocking while the
// previous byte hasn't been drained. It returns when in is exhausted, errors, or ctx is done.
// Callers run this on its own goroutine; it is the sole writer of the receive side of the device.
func (u *UART) Run(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}

			return fmt.Errorf("uart: host read: %w", err)
		}

		u.receive(b)
	}
}

// receive buffers a single host byte, waiting for the hart to drain the previous one first.
func (u *UART) receive(b byte) {
	u.mut.Lock()
	defer u.mut.Unlock()

	for u.reg[LSROffset]&LSRRxReady != 0 {
		u.empty.Wait()
	}

	u.reg[RHRTHROffset] = b
	u.interrupting = true
	u.reg[LSROffset] |= LSRRxReady

	u.log.Debug("uart: received byte", log.Int("BYTE", int(b)))
}

// Load reads a single register byte. Only byte-width accesses are defined by the bus contract; any
// other width is reported as an access-fault.
func (u *UART) Load(addr uint64, width int) (uint64, error) {
	if width != 1 {
		return 0, fmt.Errorf("uart: load: bad width %d: %w", width, exception.Exc(exception.LoadAccessFault))
	}

	u.mut.Lock()
	defer u.mut.Unlock()

	switch addr {
	case RHRTHROffset:
		val := u.reg[RHRTHROffset]
		u.reg[RHRTHROffset] = 0
		u.reg[LSROffset] &^= LSRRxReady
		u.empty.Broadcast()

		return uint64(val), nil
	default:
		if addr >= uint64(len(u.reg)) {
			return 0, fmt.Errorf("uart: load: out of range %#x: %w", addr, exception.Exc(exception.LoadAccessFault))
		}

		return uint64(u.reg[addr]), nil
	}
}

// Store writes a single register byte. A store to THR writes the byte to the host output stream.
func (u *UART) Store(addr uint64, width int, val uint64) error {
	if width != 1 {
		return fmt.Errorf("uart: store: bad width %d: %w", width, exception.Exc(exception.StoreAccessFault))
	}

	u.mut.Lock()

	switch addr {
	case RHRTHROffset:
		u.mut.Unlock()

		if _, err := fmt.Fprintf(u.out, "%c", byte(val)); err != nil {
			return fmt.Errorf("uart: store: host write: %w", err)
		}

		return nil
	default:
		if addr >= uint64(len(u.reg)) {
			u.mut.Unlock()
			return fmt.Errorf("uart: store: out of range %#x: %w", addr, exception.Exc(exception.StoreAccessFault))
		}

		u.reg[addr] = byte(val)
		u.mut.Unlock()

		return nil
	}
}

// Interrupting atomically returns and clears the pending-interrupt flag.
func (u *UART) Interrupting() bool {
	u.mut.Lock()
	defer u.mut.Unlock()

	v := u.interrupting
	u.interrupting = false

	return v
}
