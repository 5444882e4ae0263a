package bus

// dram.go is the flat byte-addressable backing store for guest RAM, mapped at DRAMBase.
//
// Grounded on smoynes-elsie's internal/vm/mem.go PhysicalMemory: a plain backing array with
// little-endian load/store helpers, generalized from 16-bit words to 1/2/4/8-byte accesses.

import (
	"encoding/binary"
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// DRAMSize is the size of guest RAM: 128 MiB.
const DRAMSize = 128 * 1024 * 1024

// DRAM is a flat little-endian byte store mapped at a fixed physical base address.
type DRAM struct {
	cell []byte
}

// NewDRAM allocates DRAM of DRAMSize bytes. If image is non-nil its contents are copied to the
// start of the backing buffer (the guest kernel, loaded raw with no ELF parsing per spec).
func NewDRAM(image []byte) *DRAM {
	d := &DRAM{cell: make([]byte, DRAMSize)}
	copy(d.cell, image)

	return d
}

// Load returns the little-endian unsigned integer of the given width stored at addr, where addr is
// already relative to the DRAM base (the bus has subtracted it).
func (d *DRAM) Load(addr uint64, width int) (uint64, error) {
	if addr+uint64(width) > uint64(len(d.cell)) {
		return 0, fmt.Errorf("dram: out of bounds load: %w", exception.Exc(exception.LoadAccessFault))
	}

	switch width {
	case 1:
		return uint64(d.cell[addr]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(d.cell[addr:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(d.cell[addr:])), nil
	case 8:
		return binary.LittleEndian.Uint64(d.cell[addr:]), nil
	default:
		return 0, fmt.Errorf("dram: bad width %d: %w", width, exception.Exc(exception.LoadAccessFault))
	}
}

// Store writes val, in the given width, little-endian, to addr (relative to the DRAM base).
func (d *DRAM) Store(addr uint64, width int, val uint64) error {
	if addr+uint64(width) > uint64(len(d.cell)) {
		return fmt.Errorf("dram: out of bounds store: %w", exception.Exc(exception.StoreAccessFault))
	}

	switch width {
	case 1:
		d.cell[addr] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(d.cell[addr:], uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(d.cell[addr:], uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(d.cell[addr:], val)
	default:
		return fmt.Errorf("dram: bad width %d: %w", width, exception.Exc(exception.StoreAccessFault))
	}

	return nil
}
