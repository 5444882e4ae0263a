package cpu

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// Opcodes, per spec §4.7.
const (
	opLoad   = 0x03
	opFence  = 0x0F
	opImm    = 0x13
	opAUIPC  = 0x17
	opImm32  = 0x1B
	opStore  = 0x23
	opAMO    = 0x2F
	opReg    = 0x33
	opLUI    = 0x37
	opReg32  = 0x3B
	opBranch = 0x63
	opJALR   = 0x67
	opJAL    = 0x6F
	opSystem = 0x73
)

// execute decodes and runs one instruction word. The pc passed to immediate-relative computations
// is the already-incremented value: the main loop advances pc by 4 before calling execute, so every
// branch/jump/auipc target below subtracts 4 back out first, matching the "pc points to the next
// instruction while execute runs" contract in spec §4.7.
func (c *CPU) execute(raw uint32) error {
	i := decode(raw)

	switch i.opcode {
	case opLoad:
		return c.execLoad(i)
	case opFence:
		return nil
	case opImm:
		return c.execImm(i)
	case opAUIPC:
		c.setReg(i.rd, uint64(int64(c.PC)-4+i.immU()))
		return nil
	case opImm32:
		return c.execImm32(i)
	case opStore:
		return c.execStore(i)
	case opAMO:
		return c.execAMO(i)
	case opReg:
		return c.execReg(i)
	case opLUI:
		c.setReg(i.rd, uint64(i.immU()))
		return nil
	case opReg32:
		return c.execReg32(i)
	case opBranch:
		return c.execBranch(i)
	case opJALR:
		t := c.PC
		target := (c.reg(i.rs1) + uint64(i.immI())) &^ 1
		c.setReg(i.rd, t)
		c.PC = target

		return nil
	case opJAL:
		c.setReg(i.rd, c.PC)
		c.PC = uint64(int64(c.PC) - 4 + i.immJ())

		return nil
	case opSystem:
		return c.execSystem(i)
	default:
		return fmt.Errorf("cpu: execute: unknown opcode %#x: %w", i.opcode, exception.Exc(exception.IllegalInstr))
	}
}

func (c *CPU) execLoad(i instruction) error {
	addr := c.reg(i.rs1) + uint64(i.immI())

	var (
		width  int
		signed bool
	)

	switch i.funct3 {
	case 0:
		width, signed = 1, true // lb
	case 1:
		width, signed = 2, true // lh
	case 2:
		width, signed = 4, true // lw
	case 3:
		width, signed = 8, true // ld
	case 4:
		width, signed = 1, false // lbu
	case 5:
		width, signed = 2, false // lhu
	case 6:
		width, signed = 4, false // lwu
	default:
		return fmt.Errorf("cpu: load: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	v, err := c.loadMem(addr, width, signed)
	if err != nil {
		return err
	}

	c.setReg(i.rd, v)

	return nil
}

func (c *CPU) execStore(i instruction) error {
	addr := c.reg(i.rs1) + uint64(i.immS())
	val := c.reg(i.rs2)

	var width int

	switch i.funct3 {
	case 0:
		width = 1
	case 1:
		width = 2
	case 2:
		width = 4
	case 3:
		width = 8
	default:
		return fmt.Errorf("cpu: store: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	return c.storeMem(addr, width, val)
}

func (c *CPU) execImm(i instruction) error {
	rs1 := c.reg(i.rs1)
	imm := i.immI()

	switch i.funct3 {
	case 0: // addi
		c.setReg(i.rd, rs1+uint64(imm))
	case 1: // slli
		c.setReg(i.rd, rs1<<i.shamt6())
	case 2: // slti
		c.setReg(i.rd, boolToReg(int64(rs1) < imm))
	case 3: // sltiu
		c.setReg(i.rd, boolToReg(rs1 < uint64(imm)))
	case 4: // xori
		c.setReg(i.rd, rs1^uint64(imm))
	case 5: // srli/srai
		if i.funct7>>1 == 0x10 {
			c.setReg(i.rd, uint64(int64(rs1)>>i.shamt6())) // srai
		} else {
			c.setReg(i.rd, rs1>>i.shamt6()) // srli
		}
	case 6: // ori
		c.setReg(i.rd, rs1|uint64(imm))
	case 7: // andi
		c.setReg(i.rd, rs1&uint64(imm))
	default:
		return fmt.Errorf("cpu: op-imm: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	return nil
}

func (c *CPU) execImm32(i instruction) error {
	rs1 := uint32(c.reg(i.rs1))

	switch i.funct3 {
	case 0: // addiw
		c.setReg(i.rd, signExtend32(rs1+uint32(i.immI())))
	case 1: // slliw
		c.setReg(i.rd, signExtend32(rs1<<i.shamt5()))
	case 5: // srliw/sraiw
		if i.funct7>>1 == 0x10 {
			c.setReg(i.rd, signExtend32(uint32(int32(rs1)>>i.shamt5()))) // sraiw
		} else {
			c.setReg(i.rd, signExtend32(rs1>>i.shamt5())) // srliw
		}
	default:
		return fmt.Errorf("cpu: op-imm-32: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	return nil
}

func (c *CPU) execReg(i instruction) error {
	rs1, rs2 := c.reg(i.rs1), c.reg(i.rs2)

	switch {
	case i.funct3 == 0 && i.funct7 == 0x00: // add
		c.setReg(i.rd, rs1+rs2)
	case i.funct3 == 0 && i.funct7 == 0x20: // sub
		c.setReg(i.rd, rs1-rs2)
	case i.funct3 == 0 && i.funct7 == 0x01: // mul
		c.setReg(i.rd, rs1*rs2)
	case i.funct3 == 1: // sll
		c.setReg(i.rd, rs1<<(rs2&0x3F))
	case i.funct3 == 2: // slt
		c.setReg(i.rd, boolToReg(int64(rs1) < int64(rs2)))
	case i.funct3 == 3: // sltu
		c.setReg(i.rd, boolToReg(rs1 < rs2))
	case i.funct3 == 4: // xor
		c.setReg(i.rd, rs1^rs2)
	case i.funct3 == 5 && i.funct7 == 0x00: // srl
		c.setReg(i.rd, rs1>>(rs2&0x3F))
	case i.funct3 == 5 && i.funct7 == 0x20: // sra
		c.setReg(i.rd, uint64(int64(rs1)>>(rs2&0x3F)))
	case i.funct3 == 6: // or
		c.setReg(i.rd, rs1|rs2)
	case i.funct3 == 7: // and
		c.setReg(i.rd, rs1&rs2)
	default:
		return fmt.Errorf("cpu: op: bad funct3/funct7 %d/%#x: %w", i.funct3, i.funct7, exception.Exc(exception.IllegalInstr))
	}

	return nil
}

func (c *CPU) execReg32(i instruction) error {
	rs1, rs2 := uint32(c.reg(i.rs1)), uint32(c.reg(i.rs2))

	switch {
	case i.funct3 == 0 && i.funct7 == 0x00: // addw
		c.setReg(i.rd, signExtend32(rs1+rs2))
	case i.funct3 == 0 && i.funct7 == 0x20: // subw
		c.setReg(i.rd, signExtend32(rs1-rs2))
	case i.funct3 == 1: // sllw
		c.setReg(i.rd, signExtend32(rs1<<(rs2&0x1F)))
	case i.funct3 == 5 && i.funct7 == 0x00: // srlw
		c.setReg(i.rd, signExtend32(rs1>>(rs2&0x1F)))
	case i.funct3 == 5 && i.funct7 == 0x20: // sraw
		c.setReg(i.rd, signExtend32(uint32(int32(rs1)>>(rs2&0x1F))))
	case i.funct3 == 5 && i.funct7 == 0x01: // divu
		if rs2 == 0 {
			c.setReg(i.rd, ^uint64(0))
		} else {
			c.setReg(i.rd, signExtend32(rs1/rs2))
		}
	case i.funct3 == 7 && i.funct7 == 0x01: // remuw
		if rs2 == 0 {
			c.setReg(i.rd, c.reg(i.rs1))
		} else {
			c.setReg(i.rd, signExtend32(rs1%rs2))
		}
	default:
		return fmt.Errorf("cpu: op-32: bad funct3/funct7 %d/%#x: %w", i.funct3, i.funct7, exception.Exc(exception.IllegalInstr))
	}

	return nil
}

// execAMO implements amoadd.w/.d and amoswap.w/.d. With a single hart there are no concurrent
// participants, so the read-modify-write sequence needs no hardware reservation.
func (c *CPU) execAMO(i instruction) error {
	funct5 := i.funct7 >> 2

	var width int

	switch i.funct3 {
	case 2:
		width = 4
	case 3:
		width = 8
	default:
		return fmt.Errorf("cpu: amo: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	addr := c.reg(i.rs1)

	old, err := c.loadMem(addr, width, width == 4)
	if err != nil {
		return err
	}

	rs2 := c.reg(i.rs2)

	var result uint64

	switch funct5 {
	case 0: // amoadd
		result = old + rs2
	case 1: // amoswap
		result = rs2
	default:
		return fmt.Errorf("cpu: amo: bad funct5 %d: %w", funct5, exception.Exc(exception.IllegalInstr))
	}

	if width == 4 {
		result = uint64(uint32(result))
	}

	if err := c.storeMem(addr, width, result); err != nil {
		return err
	}

	c.setReg(i.rd, old)

	return nil
}

func (c *CPU) execBranch(i instruction) error {
	rs1, rs2 := c.reg(i.rs1), c.reg(i.rs2)

	var taken bool

	switch i.funct3 {
	case 0: // beq
		taken = rs1 == rs2
	case 1: // bne
		taken = rs1 != rs2
	case 4: // blt
		taken = int64(rs1) < int64(rs2)
	case 5: // bge
		taken = int64(rs1) >= int64(rs2)
	case 6: // bltu
		taken = rs1 < rs2
	case 7: // bgeu
		taken = rs1 >= rs2
	default:
		return fmt.Errorf("cpu: branch: bad funct3 %d: %w", i.funct3, exception.Exc(exception.IllegalInstr))
	}

	if taken {
		// Assignment, not compound-add: the target replaces pc outright (spec §9).
		c.PC = uint64(int64(c.PC) - 4 + i.immB())
	}

	return nil
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

func signExtend32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}
