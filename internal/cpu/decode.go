package cpu

// instruction is a decoded 32-bit RV64 instruction word with its fields extracted once up front;
// individual execute helpers read the fields relevant to their format.
type instruction struct {
	raw uint32

	opcode uint32
	rd     uint32
	funct3 uint32
	rs1    uint32
	rs2    uint32
	funct7 uint32
}

func decode(raw uint32) instruction {
	return instruction{
		raw:    raw,
		opcode: raw & 0x7F,
		rd:     (raw >> 7) & 0x1F,
		funct3: (raw >> 12) & 0x7,
		rs1:    (raw >> 15) & 0x1F,
		rs2:    (raw >> 20) & 0x1F,
		funct7: (raw >> 25) & 0x7F,
	}
}

// immI returns the sign-extended 12-bit I-type immediate.
func (i instruction) immI() int64 {
	return int64(int32(i.raw)) >> 20
}

// immS returns the sign-extended 12-bit S-type immediate.
func (i instruction) immS() int64 {
	hi := (i.raw >> 25) & 0x7F
	lo := (i.raw >> 7) & 0x1F
	v := (hi << 5) | lo

	return signExtend(uint64(v), 12)
}

// immB returns the sign-extended 13-bit (even) B-type immediate.
func (i instruction) immB() int64 {
	b31 := (i.raw >> 31) & 0x1
	b7 := (i.raw >> 7) & 0x1
	b30_25 := (i.raw >> 25) & 0x3F
	b11_8 := (i.raw >> 8) & 0xF

	v := (b31 << 12) | (b7 << 11) | (b30_25 << 5) | (b11_8 << 1)

	return signExtend(uint64(v), 13)
}

// immU returns the U-type immediate, already shifted into its bit-31..12 position.
func (i instruction) immU() int64 {
	return int64(int32(i.raw & 0xFFFFF000))
}

// immJ returns the sign-extended 21-bit (even) J-type immediate.
func (i instruction) immJ() int64 {
	b31 := (i.raw >> 31) & 0x1
	b19_12 := (i.raw >> 12) & 0xFF
	b20 := (i.raw >> 20) & 0x1
	b30_21 := (i.raw >> 21) & 0x3FF

	v := (b31 << 20) | (b19_12 << 12) | (b20 << 11) | (b30_21 << 1)

	return signExtend(uint64(v), 21)
}

// shamt6 returns the 6-bit shift amount packed into an I-type instruction's immediate field (used
// by the 64-bit shift forms); shamt5 returns the 5-bit form used by the *w shifts.
func (i instruction) shamt6() uint32 { return (i.raw >> 20) & 0x3F }
func (i instruction) shamt5() uint32 { return (i.raw >> 20) & 0x1F }

// csrAddr returns the 12-bit CSR address encoded in the I-type immediate field of a system
// instruction.
func (i instruction) csrAddr() uint32 { return (i.raw >> 20) & 0xFFF }

// signExtend sign-extends the low `bits` bits of v to a full 64-bit signed value.
func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
