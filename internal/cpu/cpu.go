// Package cpu implements the RV64IMA (partial) hart: its integer register file, CSR file, Sv39
// MMU, fetch/decode/execute pipeline, and the trap and interrupt delivery it exposes to the
// driving loop.
//
// Grounded on smoynes-elsie's internal/vm package: a CPU struct owning registers and a program
// counter, a bus it drives through for every memory access, and an explicit operation-by-operation
// execute step, generalized from LC-3's fixed 16-bit instruction format and single privilege level
// to RISC-V's variable opcode dispatch, Sv39 paging, and the machine/supervisor/user trap model.
package cpu

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/bus"
	"github.com/ralphjzhang/zemu/internal/exception"
	"github.com/ralphjzhang/zemu/internal/log"
)

// Mode is the hart's current privilege level.
type Mode int

const (
	User Mode = iota
	Supervisor
	Machine
)

func (m Mode) String() string {
	switch m {
	case User:
		return "user"
	case Supervisor:
		return "supervisor"
	case Machine:
		return "machine"
	default:
		return "invalid"
	}
}

// ResetPC and ResetSP are the architectural reset values: the hart starts executing at DRAM base
// with the stack pointer at the top of DRAM.
const (
	ResetPC = bus.DRAMBase
	ResetSP = bus.DRAMBase + bus.DRAMSize
)

// CPU is the single hart this emulator models: 32 general-purpose registers, a program counter, a
// CSR file, the current privilege mode, and the paging cache derived from satp.
type CPU struct {
	X  [32]uint64
	PC uint64

	csrs [4096]uint64
	mode Mode

	enablePaging bool
	pagetable    uint64

	bus *bus.Bus
	log *log.Logger

	halted    bool
	haltCause error
}

// New creates a hart wired to b, reset to its architectural initial state.
func New(b *bus.Bus) *CPU {
	c := &CPU{bus: b, log: log.DefaultLogger()}
	c.Reset()

	return c
}

// WithLogger reconfigures the hart's logger.
func (c *CPU) WithLogger(l *log.Logger) { c.log = l }

// Reset restores the hart to its power-on state: pc at DRAM base, sp at the top of DRAM, machine
// mode, paging disabled, and all CSRs zeroed.
func (c *CPU) Reset() {
	c.X = [32]uint64{}
	c.X[2] = ResetSP
	c.PC = ResetPC
	c.mode = Machine
	c.enablePaging = false
	c.pagetable = 0
	c.csrs = [4096]uint64{}
	c.halted = false
	c.haltCause = nil
}

// Halted reports whether the hart has stopped after a fatal exception.
func (c *CPU) Halted() bool { return c.halted }

// HaltCause returns the error that halted the hart, or nil if it is still running.
func (c *CPU) HaltCause() error { return c.haltCause }

// Mode returns the hart's current privilege level.
func (c *CPU) Mode() Mode { return c.mode }

// EnablePaging reports whether the paging cache currently considers address translation active.
func (c *CPU) EnablePaging() bool { return c.enablePaging }

// SetMode forces the hart's privilege mode, for tests and debug tooling that need to stage a
// scenario without running the trap path that would normally produce it.
func (c *CPU) SetMode(m Mode) { c.mode = m }

// CSR reads a control and status register by its 12-bit address.
func (c *CPU) CSR(addr uint32) uint64 { return c.loadCsr(addr) }

// SetCSR writes a control and status register by its 12-bit address, through the same path
// csrr* instructions use, including the satp-triggered paging-cache refresh.
func (c *CPU) SetCSR(addr uint32, v uint64) { c.storeCsr(addr, v) }

// reg returns the value of integer register i. Register 0 always reads as zero.
func (c *CPU) reg(i uint32) uint64 {
	if i == 0 {
		return 0
	}

	return c.X[i]
}

// setReg writes v to integer register i. Writes to register 0 are discarded.
func (c *CPU) setReg(i uint32, v uint64) {
	if i == 0 {
		return
	}

	c.X[i] = v
}

// Step runs one iteration of the fetch/execute/trap/interrupt cycle described in spec §4.7. It
// returns false once the hart has halted on a fatal exception.
func (c *CPU) Step() bool {
	if c.halted {
		return false
	}

	inst, fetchErr := c.fetch()
	if fetchErr != nil {
		c.takeTrap(asCause(fetchErr), nil)

		return !c.halted
	}

	c.PC += 4

	if execErr := c.execute(inst); execErr != nil {
		c.takeTrap(asCause(execErr), nil)

		if c.halted {
			return false
		}
	}

	c.X[0] = 0

	if irq, ok := c.checkPendingInterrupt(); ok {
		c.takeTrap(nil, irq)
	}

	return !c.halted
}

// Run steps the hart until it halts.
func (c *CPU) Run() error {
	for c.Step() {
	}

	return c.haltCause
}

// fetch translates pc through the MMU and loads the 32-bit instruction word there.
func (c *CPU) fetch() (uint32, error) {
	phys, err := c.translate(c.PC, exception.InstrPageFault)
	if err != nil {
		return 0, err
	}

	word, err := c.bus.Load32(phys)
	if err != nil {
		return 0, fmt.Errorf("cpu: fetch: %w", exception.Exc(exception.InstrAccessFault))
	}

	return word, nil
}

// asCause recovers the exception.Cause wrapped in err, falling back to illegal-instruction if none
// is present (every fetch/execute error path is expected to wrap one).
func asCause(err error) *exception.Cause {
	var cause exception.Cause
	if unwrapCause(err, &cause) {
		return &cause
	}

	fallback := exception.Exc(exception.IllegalInstr)

	return &fallback
}

func unwrapCause(err error, out *exception.Cause) bool {
	type unwrapper interface{ Unwrap() error }

	for err != nil {
		if c, ok := err.(exception.Cause); ok {
			*out = c

			return true
		}

		u, ok := err.(unwrapper)
		if !ok {
			return false
		}

		err = u.Unwrap()
	}

	return false
}
