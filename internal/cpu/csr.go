package cpu

// CSR addresses implemented by this hart, per spec §6.
const (
	CsrSstatus = 0x100
	CsrSie     = 0x104
	CsrStvec   = 0x105
	CsrSepc    = 0x141
	CsrScause  = 0x142
	CsrStval   = 0x143
	CsrSip     = 0x144
	CsrSatp    = 0x180

	CsrMstatus = 0x300
	CsrMedeleg = 0x302
	CsrMideleg = 0x303
	CsrMie     = 0x304
	CsrMtvec   = 0x305
	CsrMepc    = 0x341
	CsrMcause  = 0x342
	CsrMtval   = 0x343
	CsrMip     = 0x344
)

// mstatus/sstatus bit positions.
const (
	sieBit  = 1
	mieBit  = 3
	spieBit = 5
	mpieBit = 7
	sppBit  = 8
	mppLo   = 11 // mstatus.MPP occupies bits [12:11]
)

// mip/mie bit assignments, per spec §6.
const (
	ssipBit = 1
	msipBit = 3
	stipBit = 5
	mtipBit = 7
	seipBit = 9
	meipBit = 11
)

const pageSize = 4096

// loadCsr reads CSR addr. sie is synthesized from mie masked by mideleg rather than stored
// directly, per spec §4.7.
func (c *CPU) loadCsr(addr uint32) uint64 {
	if addr == CsrSie {
		return c.csrs[CsrMie] & c.csrs[CsrMideleg]
	}

	return c.csrs[addr]
}

// storeCsr writes v to CSR addr, then refreshes the paging cache if addr is satp. sie is special:
// it updates only the bits of mie that mideleg delegates to supervisor mode.
func (c *CPU) storeCsr(addr uint32, v uint64) {
	if addr == CsrSie {
		mideleg := c.csrs[CsrMideleg]
		c.csrs[CsrMie] = (c.csrs[CsrMie] &^ mideleg) | (v & mideleg)
	} else {
		c.csrs[addr] = v
	}

	c.updatePaging(addr)
}

// updatePaging refreshes the enablePaging/pagetable cache from satp whenever satp itself was just
// written. The cache, not satp, is consulted during translation.
func (c *CPU) updatePaging(addr uint32) {
	if addr != CsrSatp {
		return
	}

	satp := c.csrs[CsrSatp]
	c.pagetable = (satp & ((1 << 44) - 1)) * pageSize
	c.enablePaging = (satp >> 60) == 8
}
