package cpu

import (
	"github.com/ralphjzhang/zemu/internal/exception"
	"github.com/ralphjzhang/zemu/internal/log"
)

// takeTrap delivers either a synchronous exception or an asynchronous interrupt, whichever of exc
// and intr is non-nil, following the delegation and state-save rules in spec §4.7. Fatal exceptions
// halt the hart after the trap state is recorded.
func (c *CPU) takeTrap(exc, intr *exception.Cause) {
	var cause exception.Cause

	switch {
	case exc != nil:
		cause = *exc
	case intr != nil:
		cause = *intr
	default:
		return
	}

	excPC := c.PC - 4
	prevMode := c.mode

	delegated := prevMode != Machine && (c.csrs[CsrMedeleg]>>cause.Code)&1 == 1

	if delegated {
		c.mode = Supervisor

		base := c.csrs[CsrStvec] &^ 1
		if cause.Interrupt && c.csrs[CsrStvec]&1 == 1 {
			c.PC = base + 4*cause.Code
		} else {
			c.PC = base
		}

		c.csrs[CsrSepc] = excPC &^ 1
		c.csrs[CsrScause] = cause.Discriminant()
		c.csrs[CsrStval] = 0

		s := c.csrs[CsrSstatus]
		sie := s >> sieBit & 1

		s = setBit(s, spieBit, sie == 1)
		s = setBit(s, sieBit, false)
		s = setBit(s, sppBit, prevMode == Supervisor)

		c.csrs[CsrSstatus] = s
	} else {
		c.mode = Machine

		base := c.csrs[CsrMtvec] &^ 1
		if cause.Interrupt && c.csrs[CsrMtvec]&1 == 1 {
			c.PC = base + 4*cause.Code
		} else {
			c.PC = base
		}

		c.csrs[CsrMepc] = excPC &^ 1
		c.csrs[CsrMcause] = cause.Discriminant()
		c.csrs[CsrMtval] = 0

		m := c.csrs[CsrMstatus]
		mie := m >> mieBit & 1

		m = setBit(m, mpieBit, mie == 1)
		m = setBit(m, mieBit, false)
		m &^= uint64(0x3) << mppLo
		m |= encodeMode(prevMode) << mppLo

		c.csrs[CsrMstatus] = m
	}

	if exc != nil && exc.Fatal() {
		c.halted = true
		c.haltCause = *exc
	}
}

func encodeMode(m Mode) uint64 {
	switch m {
	case User:
		return 0
	case Supervisor:
		return 1
	default:
		return 3
	}
}

// checkPendingInterrupt polls the PLIC-visible device lines and the mie/mip masks, per spec §4.7.
// It returns the highest-priority pending interrupt cause, having already cleared its mip bit, or
// ok=false if none is deliverable.
func (c *CPU) checkPendingInterrupt() (*exception.Cause, bool) {
	switch c.mode {
	case Machine:
		if c.csrs[CsrMstatus]>>mieBit&1 == 0 {
			return nil, false
		}
	case Supervisor:
		if c.csrs[CsrSstatus]>>sieBit&1 == 0 {
			return nil, false
		}
	}

	if c.bus.UARTInterrupting() {
		if err := c.bus.PLICClaim(uartIRQ); err != nil {
			c.log.Error("cpu: interrupt: plic claim failed", log.Any("ERROR", err))
		}

		c.csrs[CsrMip] |= 1 << seipBit
	} else if c.bus.VirtioInterrupting() {
		if err := c.bus.DiskAccess(); err != nil {
			c.halted = true
			c.haltCause = err

			return nil, false
		}

		if err := c.bus.PLICClaim(virtioIRQ); err != nil {
			c.log.Error("cpu: interrupt: plic claim failed", log.Any("ERROR", err))
		}

		c.csrs[CsrMip] |= 1 << seipBit
	}

	pending := c.csrs[CsrMie] & c.csrs[CsrMip]

	for _, bit := range priorityOrder {
		if pending&(1<<bit) != 0 {
			c.csrs[CsrMip] &^= 1 << bit
			cause := exception.Intr(uint64(bit))

			return &cause, true
		}
	}

	return nil, false
}

// uartIRQ and virtioIRQ are the PLIC line numbers wired to the UART and the virtio block device.
// The UART is duplicated here (also internal/uart.IRQ) to keep the cpu package from importing the
// device packages directly; both packages agree with the platform's fixed interrupt map.
const (
	uartIRQ   = 10
	virtioIRQ = 1
)

// priorityOrder is the scan order checkPendingInterrupt uses across mie & mip, per spec §4.7.
var priorityOrder = [...]uint{meipBit, msipBit, mtipBit, seipBit, ssipBit, stipBit}
