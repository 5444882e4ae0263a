// Package virtio implements the minimal virtio-mmio block device surface the guest kernel's
// driver probes and drives: the fixed identification registers, the mutable negotiation and
// queue-location registers, and the disk backing store itself. The split-virtqueue descriptor
// walk lives in the bus package, which owns the DMA address arithmetic across devices; this
// package only holds the registers and the raw disk bytes the walk reads and writes.
//
// Grounded on smoynes-elsie's internal/vm/mem.go Memory (a flat byte-addressed backing store with
// bounds-checked load/store), generalized to the virtio-mmio register layout and the
// read-only-identification / mutable-negotiation split described in spec ยง4.5.
package virtio

import (
	"fmt"

	"github.com/ralphjzhang/zemu/internal/exception"
	"github.com/ralphjzhang/zemu/internal/log"
)

// Register offsets within the virtio-mmio window.
const (
	MagicOffset          = 0x000
	VersionOffset        = 0x004
	DeviceIDOffset       = 0x008
	VendorIDOffset       = 0x00c
	DeviceFeaturesOffset = 0x010
	DriverFeaturesOffset = 0x020
	PageSizeOffset       = 0x028
	QueueSelOffset       = 0x030
	QueueNumMaxOffset    = 0x034
	QueueNumOffset       = 0x038
	QueuePFNOffset       = 0x040
	QueueNotifyOffset    = 0x050
	StatusOffset         = 0x070
)

// Fixed identification values reported by this device.
const (
	MagicValue     = 0x74726976 // "virt"
	Version        = 1
	DeviceID       = 2 // block device
	VendorID       = 0x554d4551
	DeviceFeatures = 0
	QueueNumMax    = 8
)

// notifyIdle is the reset value of queue_notify: no queue has been notified.
const notifyIdle = 0xFFFF_FFFF

// Virtio is a virtio-mmio block device backed by a flat in-memory disk image.
type Virtio struct {
	disk []byte

	driverFeatures uint32
	pageSize       uint32
	queueSel       uint32
	queueNum       uint32
	queuePFN       uint32
	queueNotify    uint32
	status         uint32

	nextID uint64

	log *log.Logger
}

// New creates a Virtio block device backed by disk. disk is used directly, not copied: reads and
// writes to the device mutate it in place.
func New(disk []byte) *Virtio {
	return &Virtio{
		disk:        disk,
		queueNotify: notifyIdle,
		log:         log.DefaultLogger(),
	}
}

// WithLogger reconfigures the device's logger.
func (v *Virtio) WithLogger(l *log.Logger) { v.log = l }

// Load reads a 4-byte register. Any other width is reported as an access-fault.
func (v *Virtio) Load(addr uint64, width int) (uint64, error) {
	if width != 4 {
		return 0, fmt.Errorf("virtio: load: bad width %d: %w", width, exception.Exc(exception.LoadAccessFault))
	}

	switch addr {
	case MagicOffset:
		return MagicValue, nil
	case VersionOffset:
		return Version, nil
	case DeviceIDOffset:
		return DeviceID, nil
	case VendorIDOffset:
		return VendorID, nil
	case DeviceFeaturesOffset:
		return DeviceFeatures, nil
	case DriverFeaturesOffset:
		return uint64(v.driverFeatures), nil
	case PageSizeOffset:
		return uint64(v.pageSize), nil
	case QueueNumMaxOffset:
		return QueueNumMax, nil
	case QueueNumOffset:
		return uint64(v.queueNum), nil
	case QueuePFNOffset:
		return uint64(v.queuePFN), nil
	case QueueNotifyOffset:
		return uint64(v.queueNotify), nil
	case StatusOffset:
		return uint64(v.status), nil
	default:
		return 0, nil
	}
}

// Store writes a 4-byte register. Any other width is reported as an access-fault.
//
// A store to DeviceFeaturesOffset writes driverFeatures, not deviceFeatures: the guest driver in
// this configuration always addresses the features register it means to negotiate through the
// device-features offset, and the device accepts it there rather than rejecting the access. This
// mirrors the guest/device pairing the emulator targets and is preserved rather than "fixed".
func (v *Virtio) Store(addr uint64, width int, val uint64) error {
	if width != 4 {
		return fmt.Errorf("virtio: store: bad width %d: %w", width, exception.Exc(exception.StoreAccessFault))
	}

	switch addr {
	case DeviceFeaturesOffset:
		v.driverFeatures = uint32(val)
	case DriverFeaturesOffset:
		v.driverFeatures = uint32(val)
	case PageSizeOffset:
		v.pageSize = uint32(val)
	case QueueSelOffset:
		v.queueSel = uint32(val)
	case QueueNumOffset:
		v.queueNum = uint32(val)
	case QueuePFNOffset:
		v.queuePFN = uint32(val)
	case QueueNotifyOffset:
		v.queueNotify = uint32(val)
		v.log.Debug("virtio: queue notify", log.Uint64("QUEUE", uint64(val)))
	case StatusOffset:
		v.status = uint32(val)
	}

	return nil
}

// Interrupting reports, and clears, whether the guest has notified a queue since the last call.
func (v *Virtio) Interrupting() bool {
	if v.queueNotify == notifyIdle {
		return false
	}

	v.queueNotify = notifyIdle

	return true
}

// DescAddr returns the guest-physical address of the descriptor table, derived from the queue's
// page frame number and the negotiated page size.
func (v *Virtio) DescAddr() uint64 {
	return uint64(v.queuePFN) * uint64(v.pageSize)
}

// NewID returns a monotonically increasing request identifier, used to populate the used ring's
// id field after a request completes.
func (v *Virtio) NewID() uint64 {
	v.nextID++
	return v.nextID
}

// DiskRead returns the byte at byteIndex in the backing disk image.
func (v *Virtio) DiskRead(byteIndex uint64) (byte, error) {
	if byteIndex >= uint64(len(v.disk)) {
		return 0, fmt.Errorf("virtio: disk read: out of range %#x: %w", byteIndex, exception.Exc(exception.LoadAccessFault))
	}

	return v.disk[byteIndex], nil
}

// DiskWrite writes b at byteIndex in the backing disk image.
func (v *Virtio) DiskWrite(byteIndex uint64, b byte) error {
	if byteIndex >= uint64(len(v.disk)) {
		return fmt.Errorf("virtio: disk write: out of range %#x: %w", byteIndex, exception.Exc(exception.StoreAccessFault))
	}

	v.disk[byteIndex] = b

	return nil
}
