package cpu

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
)

// loadMem translates addr and loads width bytes through the bus, sign-extending the result unless
// signed is false.
func (c *CPU) loadMem(addr uint64, width int, signed bool) (uint64, error) {
	phys, err := c.translate(addr, exception.LoadPageFault)
	if err != nil {
		return 0, err
	}

	var (
		raw  uint64
		lerr error
	)

	switch width {
	case 1:
		v, e := c.bus.Load8(phys)
		raw, lerr = uint64(v), e
	case 2:
		v, e := c.bus.Load16(phys)
		raw, lerr = uint64(v), e
	case 4:
		v, e := c.bus.Load32(phys)
		raw, lerr = uint64(v), e
	case 8:
		raw, lerr = c.bus.Load64(phys)
	default:
		return 0, fmt.Errorf("cpu: loadMem: bad width %d", width)
	}

	if lerr != nil {
		return 0, lerr
	}

	if !signed {
		return raw, nil
	}

	bits := uint(width) * 8

	return uint64(signExtend(raw, bits)), nil
}

// storeMem translates addr and stores width bytes of val through the bus.
func (c *CPU) storeMem(addr uint64, width int, val uint64) error {
	phys, err := c.translate(addr, exception.StorePageFault)
	if err != nil {
		return err
	}

	switch width {
	case 1:
		return c.bus.Store8(phys, uint8(val))
	case 2:
		return c.bus.Store16(phys, uint16(val))
	case 4:
		return c.bus.Store32(phys, uint32(val))
	case 8:
		return c.bus.Store64(phys, val)
	default:
		return fmt.Errorf("cpu: storeMem: bad width %d", width)
	}
}
