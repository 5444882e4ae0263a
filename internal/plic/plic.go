// Package plic models the four memory-mapped registers the emulator exposes from the
// Platform-Level Interrupt Controller: pending, supervisor-enable, supervisor-priority, and
// supervisor-claim.
//
// Grounded on smoynes-elsie's internal/vm/words.go register types (bare Word-sized registers with
// simple load/store semantics), generalized to a four-register device addressed by offset with
// "last written IRQ wins" claim semantics instead of real priority arbitration, per spec ยง4.3.
package plic

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// Register offsets within the PLIC's mapped region.
const (
	PendingOffset   = 0x1000
	SenableOffset   = 0x2000
	SpriorityOffset = 0x20_1000
	SclaimOffset    = 0x20_1004
)

// PLIC holds the four supported registers. There is no real priority arbitration: whichever IRQ
// was most recently written to Sclaim is considered claimed.
type PLIC struct {
	Pending   uint32
	Senable   uint32
	Spriority uint32
	Sclaim    uint32
}

// New creates a PLIC with all registers zeroed.
func New() *PLIC {
	return &PLIC{}
}

// Load reads a 4-byte register at addr. Any other width is an access-fault.
func (p *PLIC) Load(addr uint64, width int) (uint64, error) {
	if width != 4 {
		return 0, fmt.Errorf("plic: load: bad width %d: %w", width, exception.Exc(exception.LoadAccessFault))
	}

	switch addr {
	case PendingOffset:
		return uint64(p.Pending), nil
	case SenableOffset:
		return uint64(p.Senable), nil
	case SpriorityOffset:
		return uint64(p.Spriority), nil
	case SclaimOffset:
		return uint64(p.Sclaim), nil
	default:
		return 0, nil
	}
}

// Store writes a 4-byte register at addr. Any other width is an access-fault.
func (p *PLIC) Store(addr uint64, width int, val uint64) error {
	if width != 4 {
		return fmt.Errorf("plic: store: bad width %d: %w", width, exception.Exc(exception.StoreAccessFault))
	}

	switch addr {
	case PendingOffset:
		p.Pending = uint32(val)
	case SenableOffset:
		p.Senable = uint32(val)
	case SpriorityOffset:
		p.Spriority = uint32(val)
	case SclaimOffset:
		p.Sclaim = uint32(val)
	}

	return nil
}
