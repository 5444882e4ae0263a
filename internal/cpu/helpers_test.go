package cpu_test

import (
	"encoding/binary"

	"github.com/ralphjzhang/zemu/internal/bus"
	"github.com/ralphjzhang/zemu/internal/clint"
	"github.com/ralphjzhang/zemu/internal/cpu"
	"github.com/ralphjzhang/zemu/internal/plic"
	"github.com/ralphjzhang/zemu/internal/virtio"
)

// assemble packs a sequence of 32-bit instruction words into a little-endian byte image suitable
// for loading at DRAM base.
func assemble(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))

	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}

	return buf
}

// newMachine wires a full bus (DRAM plus all four platform devices) and a fresh hart over it, with
// code loaded at DRAM base.
func newMachine(code []byte) (*cpu.CPU, *bus.Bus) {
	dram := bus.NewDRAM(code)
	b := bus.New(dram, clint.New(), plic.New(), nil, virtio.New(make([]byte, 4096)))
	c := cpu.New(b)

	return c, b
}
