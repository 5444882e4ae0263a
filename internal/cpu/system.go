package cpu

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// execSystem handles opcode 0x73: ecall/ebreak/sret/mret/sfence.vma when funct3 is 0, and the six
// csrr* variants otherwise.
func (c *CPU) execSystem(i instruction) error {
	if i.funct3 == 0 {
		return c.execSystemOp(i)
	}

	return c.execCsr(i)
}

func (c *CPU) execSystemOp(i instruction) error {
	switch {
	case i.funct7 == 0x00 && i.rs2 == 0: // ecall
		switch c.mode {
		case User:
			return fmt.Errorf("cpu: ecall: %w", exception.Exc(exception.EcallFromU))
		case Supervisor:
			return fmt.Errorf("cpu: ecall: %w", exception.Exc(exception.EcallFromS))
		default:
			return fmt.Errorf("cpu: ecall: %w", exception.Exc(exception.EcallFromM))
		}
	case i.funct7 == 0x00 && i.rs2 == 1: // ebreak
		return fmt.Errorf("cpu: ebreak: %w", exception.Exc(exception.Breakpoint))
	case i.funct7 == 0x08 && i.rs2 == 2: // sret
		c.execSret()
		return nil
	case i.funct7 == 0x18 && i.rs2 == 2: // mret
		c.execMret()
		return nil
	case i.funct7 == 0x09: // sfence.vma
		return nil
	default:
		return fmt.Errorf("cpu: system: unrecognized rs2/funct7 %d/%#x: %w", i.rs2, i.funct7, exception.Exc(exception.IllegalInstr))
	}
}

// execSret returns from a supervisor trap: pc is restored from sepc, mode from sstatus.SPP, and
// sstatus.SIE/SPIE/SPP are updated per spec §4.7.
func (c *CPU) execSret() {
	c.PC = c.csrs[CsrSepc]

	s := c.csrs[CsrSstatus]

	if s>>sppBit&1 == 1 {
		c.mode = Supervisor
	} else {
		c.mode = User
	}

	spie := s >> spieBit & 1

	s = setBit(s, sieBit, spie == 1)
	s = setBit(s, spieBit, true)
	s = setBit(s, sppBit, false)

	c.csrs[CsrSstatus] = s
}

// execMret returns from a machine trap. pc is restored from mepc, not sepc: the source's reuse of
// sepc here was a bug (spec §9), corrected to the architecturally defined register.
func (c *CPU) execMret() {
	c.PC = c.csrs[CsrMepc]

	m := c.csrs[CsrMstatus]
	mpp := (m >> mppLo) & 0x3

	switch mpp {
	case 0:
		c.mode = User
	case 1:
		c.mode = Supervisor
	default:
		c.mode = Machine
	}

	mpie := m >> mpieBit & 1

	m = setBit(m, mieBit, mpie == 1)
	m = setBit(m, mpieBit, true)
	m &^= uint64(0x3) << mppLo

	c.csrs[CsrMstatus] = m
}

func (c *CPU) execCsr(i instruction) error {
	addr := i.csrAddr()
	old := c.loadCsr(addr)

	var operand uint64

	switch i.funct3 {
	case 1, 2, 3: // csrrw, csrrs, csrrc: operand comes from rs1.
		operand = c.reg(i.rs1)
	case 5, 6, 7: // csrrwi, csrrsi, csrrci: operand is the rs1 field as a 5-bit zero-extended immediate.
		operand = uint64(i.rs1)
	default:
		return fmt.Errorf("cpu: csr: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	var next uint64

	switch i.funct3 {
	case 1, 5: // csrrw / csrrwi
		next = operand
	case 2, 6: // csrrs / csrrsi
		next = old | operand
	case 3, 7: // csrrc / csrrci
		next = old &^ operand
	}

	c.storeCsr(addr, next)
	c.setReg(i.rd, old)

	return nil
}

func setBit(v uint64, bit uint, on bool) uint64 {
	if on {
		return v | (1 << bit)
	}

	return v &^ (1 << bit)
}
