// Package clint models the Core Local Interruptor's two memory-mapped timer registers.
//
// Grounded on smoynes-elsie's memory-mapped registers (internal/vm/words.go's
// ProcessorStatus/ControlRegister: a bare value with Get/Put semantics), generalized here to a
// two-register device accessed by offset.
package clint

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// Register offsets within the CLINT's mapped region.
const (
	MtimecmpOffset = 0x4000
	MtimeOffset    = 0xBFF8
)

// CLINT holds the mtime/mtimecmp doublewords. The emulator does not generate timer interrupts in
// this subset (spec ยง4.2); the registers exist so guest timer management code does not fault.
type CLINT struct {
	Mtime    uint64
	Mtimecmp uint64
}

// New creates a CLINT with both registers zeroed.
func New() *CLINT {
	return &CLINT{}
}

// Load reads an 8-byte register at addr (relative to the CLINT base). Any other address in the
// region reads as zero; any width other than 8 bytes is an access-fault.
func (c *CLINT) Load(addr uint64, width int) (uint64, error) {
	if width != 8 {
		return 0, fmt.Errorf("clint: load: bad width %d: %w", width, exception.Exc(exception.LoadAccessFault))
	}

	switch addr {
	case MtimecmpOffset:
		return c.Mtimecmp, nil
	case MtimeOffset:
		return c.Mtime, nil
	default:
		return 0, nil
	}
}

// Store writes an 8-byte register at addr. Any other address swallows the write; any width other
// than 8 bytes is an access-fault.
func (c *CLINT) Store(addr uint64, width int, val uint64) error {
	if width != 8 {
		return fmt.Errorf("clint: store: bad width %d: %w", width, exception.Exc(exception.StoreAccessFault))
	}

	switch addr {
	case MtimecmpOffset:
		c.Mtimecmp = val
	case MtimeOffset:
		c.Mtime = val
	}

	return nil
}
