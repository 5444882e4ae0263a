package cpu

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// Translate exposes the Sv39 walk for tests and debug tooling, using load_page_fault as the
// generic failure kind.
func (c *CPU) Translate(vaddr uint64) (uint64, error) {
	return c.translate(vaddr, exception.LoadPageFault)
}

// PTE bit positions.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
)

// translate converts a 39-bit virtual address to a physical address, walking the Sv39 page table
// when paging is enabled. faultKind is the exception cause raised on any walk failure, so the same
// walker serves instruction, load, and store translation with the caller's fault taxonomy.
//
// The page offset is always the low 12 bits of the virtual address: a single, uniform mask rather
// than the narrower mask some guest-facing code paths used historically (spec §9).
func (c *CPU) translate(vaddr uint64, faultKind uint64) (uint64, error) {
	if !c.enablePaging {
		return vaddr, nil
	}

	const offsetMask = 0xFFF

	offset := vaddr & offsetMask
	vpn := [3]uint64{
		(vaddr >> 12) & 0x1FF,
		(vaddr >> 21) & 0x1FF,
		(vaddr >> 30) & 0x1FF,
	}

	a := c.pagetable
	level := 2

	var pte uint64

	for {
		ptePhys := a + vpn[level]*8

		word, err := c.bus.Load64(ptePhys)
		if err != nil {
			return 0, fmt.Errorf("cpu: translate: pte load: %w", exception.Exc(faultKind))
		}

		pte = word

		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, fmt.Errorf("cpu: translate: invalid pte at level %d: %w", level, exception.Exc(faultKind))
		}

		if pte&pteR != 0 || pte&pteX != 0 {
			break
		}

		level--
		if level < 0 {
			return 0, fmt.Errorf("cpu: translate: walk exhausted: %w", exception.Exc(faultKind))
		}

		a = ppn(pte) * pageSize
	}

	ppn1 := (pte >> 19) & 0x1FF
	ppn2 := (pte >> 28) & 0x3FF_FFFF

	switch level {
	case 2:
		return ppn2<<30 | vpn[1]<<21 | vpn[0]<<12 | offset, nil
	case 1:
		return ppn2<<30 | ppn1<<21 | vpn[0]<<12 | offset, nil
	default:
		return ((pte >> 10) & 0x0FFF_FFFF_FFFF) << 12 | offset, nil
	}
}

// ppn extracts the full 44-bit physical page number from a PTE, used to locate the next level's
// page table during a walk (as opposed to the split ppn0/ppn1/ppn2 used to assemble a leaf
// address).
func ppn(pte uint64) uint64 {
	return (pte >> 10) & 0x0FFF_FFFF_FFFF
}
