package cpu_test

import (
	"testing"

	"github.com/ralphjzhang/zemu/internal/cpu"
)

// TestMretReadsMepcNotSepc pins the corrected behavior for the divergence noted in the design
// notes: mret must restore pc from mepc, not sepc. Feeding the two registers different values
// makes a regression to the old (buggy) behavior immediately visible.
func TestMretReadsMepcNotSepc(t *testing.T) {
	c, _ := newMachine(assemble(0x30200073)) // mret

	c.SetCSR(cpu.CsrMepc, 0x8000_2000)
	c.SetCSR(cpu.CsrSepc, 0x8000_9999)
	c.SetMode(cpu.Machine)

	c.Step()

	if c.PC != 0x8000_2000 {
		t.Errorf("pc: got %#x, want mepc %#x", c.PC, uint64(0x8000_2000))
	}
}

// TestMretRestoresModeFromMPP checks the privilege transition alongside the pc fix.
func TestMretRestoresModeFromMPP(t *testing.T) {
	c, _ := newMachine(assemble(0x30200073)) // mret

	c.SetCSR(cpu.CsrMepc, 0x8000_0100)
	c.SetCSR(cpu.CsrMstatus, 1<<11) // MPP = 01 (supervisor)
	c.SetMode(cpu.Machine)

	c.Step()

	if c.Mode() != cpu.Supervisor {
		t.Errorf("mode: got %v, want supervisor", c.Mode())
	}

	// MPP must be cleared after the return.
	mpp := (c.CSR(cpu.CsrMstatus) >> 11) & 0x3
	if mpp != 0 {
		t.Errorf("mstatus.MPP: got %d, want 0 after mret", mpp)
	}
}

// TestBltuAssignsTargetRatherThanCompounding pins the fix for the second noted divergence: the
// branch target replaces pc outright rather than being added on top of it.
func TestBltuAssignsTargetRatherThanCompounding(t *testing.T) {
	// bltu x1, x2, +8 at pc=0x8000_0000: opcode 0x63, funct3=6, imm=8.
	c, _ := newMachine(assemble(0x0020e463))

	c.X[1] = 1
	c.X[2] = 2

	c.Step()

	if c.PC != 0x8000_0008 {
		t.Errorf("pc: got %#x, want %#x (assignment, not compound add)", c.PC, uint64(0x8000_0008))
	}
}

func TestBgeuAssignsTargetRatherThanCompounding(t *testing.T) {
	// bgeu x2, x1, +8 at pc=0x8000_0000: opcode 0x63, funct3=7, imm=8.
	c, _ := newMachine(assemble(0x00117463))

	c.X[1] = 1
	c.X[2] = 2

	c.Step()

	if c.PC != 0x8000_0008 {
		t.Errorf("pc: got %#x, want %#x (assignment, not compound add)", c.PC, uint64(0x8000_0008))
	}
}

// TestTakeTrapSstatusSingleMaskedUpdate pins the fourth divergence: entering a delegated trap must
// update sstatus with a single masked write (SPIE<-SIE, SIE<-0, SPP<-prev mode), not a full
// replacement that would clobber unrelated bits such as SUM or MXR.
func TestTakeTrapSstatusSingleMaskedUpdate(t *testing.T) {
	c, _ := newMachine(assemble(0x00000073)) // ecall

	const sumBit = 1 << 18 // an unrelated sstatus bit that must survive the trap entry

	c.SetMode(cpu.Supervisor)
	c.SetCSR(cpu.CsrMedeleg, 1<<9) // delegate ecall_from_smode
	c.SetCSR(cpu.CsrSstatus, sumBit|1<<1)

	c.Step()

	got := c.CSR(cpu.CsrSstatus)
	if got&sumBit == 0 {
		t.Errorf("sstatus: unrelated bits must survive a masked update, got %#x", got)
	}

	if got&(1<<5) == 0 {
		t.Error("sstatus.SPIE should be set from the prior SIE")
	}

	if got&(1<<1) != 0 {
		t.Error("sstatus.SIE should be cleared on trap entry")
	}

	if got&(1<<8) == 0 {
		t.Error("sstatus.SPP should record supervisor as the previous mode")
	}
}

func TestFatalExceptionHaltsHart(t *testing.T) {
	c, b := newMachine(nil)
	_ = b

	c.PC = 0x9000_0000 // outside DRAM, outside any device: unmapped physical address

	c.Step()

	if !c.Halted() {
		t.Error("expected an unmapped fetch to be a fatal access-fault and halt the hart")
	}
}
