package virtio_test

import (
	"testing"

	"github.com/ralphjzhang/zemu/internal/virtio"
)

func TestIdentificationRegistersAreReadOnly(t *testing.T) {
	v := virtio.New(make([]byte, 512))

	cases := []struct {
		name   string
		offset uint64
		want   uint64
	}{
		{"magic", virtio.MagicOffset, virtio.MagicValue},
		{"version", virtio.VersionOffset, virtio.Version},
		{"device id", virtio.DeviceIDOffset, virtio.DeviceID},
		{"vendor id", virtio.VendorIDOffset, virtio.VendorID},
		{"device features", virtio.DeviceFeaturesOffset, virtio.DeviceFeatures},
		{"queue num max", virtio.QueueNumMaxOffset, virtio.QueueNumMax},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := v.Load(c.offset, 4)
			if err != nil {
				t.Fatalf("load: %v", err)
			}

			if got != c.want {
				t.Errorf("got %#x, want %#x", got, c.want)
			}
		})
	}
}

func TestDeviceFeaturesStoreGoesToDriverFeatures(t *testing.T) {
	v := virtio.New(make([]byte, 512))

	if err := v.Store(virtio.DeviceFeaturesOffset, 4, 0x42); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := v.Load(virtio.DriverFeaturesOffset, 4)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got != 0x42 {
		t.Errorf("driver_features: got %#x, want %#x", got, 0x42)
	}

	got, err = v.Load(virtio.DeviceFeaturesOffset, 4)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got != virtio.DeviceFeatures {
		t.Errorf("device_features should remain fixed, got %#x", got)
	}
}

func TestQueuePFNAndDescAddr(t *testing.T) {
	v := virtio.New(make([]byte, 512))

	if err := v.Store(virtio.PageSizeOffset, 4, 4096); err != nil {
		t.Fatalf("store page size: %v", err)
	}

	if err := v.Store(virtio.QueuePFNOffset, 4, 3); err != nil {
		t.Fatalf("store queue pfn: %v", err)
	}

	if got, want := v.DescAddr(), uint64(3*4096); got != want {
		t.Errorf("DescAddr: got %#x, want %#x", got, want)
	}
}

func TestInterruptingEdgeLatches(t *testing.T) {
	v := virtio.New(make([]byte, 512))

	if v.Interrupting() {
		t.Error("should not be interrupting before any notify")
	}

	if err := v.Store(virtio.QueueNotifyOffset, 4, 0); err != nil {
		t.Fatalf("store queue notify: %v", err)
	}

	if !v.Interrupting() {
		t.Error("expected interrupting after queue notify")
	}

	if v.Interrupting() {
		t.Error("interrupting should clear after being observed")
	}
}

func TestDiskReadWriteRoundTrip(t *testing.T) {
	disk := make([]byte, 1024)
	v := virtio.New(disk)

	if err := v.DiskWrite(10, 0xAB); err != nil {
		t.Fatalf("disk write: %v", err)
	}

	got, err := v.DiskRead(10)
	if err != nil {
		t.Fatalf("disk read: %v", err)
	}

	if got != 0xAB {
		t.Errorf("disk byte: got %#x, want %#x", got, 0xAB)
	}

	if disk[10] != 0xAB {
		t.Error("DiskWrite should mutate the backing slice in place")
	}
}

func TestDiskAccessOutOfRangeFaults(t *testing.T) {
	v := virtio.New(make([]byte, 4))

	if _, err := v.DiskRead(100); err == nil {
		t.Error("expected fault for out-of-range disk read")
	}

	if err := v.DiskWrite(100, 1); err == nil {
		t.Error("expected fault for out-of-range disk write")
	}
}

func TestNewIDIsMonotonic(t *testing.T) {
	v := virtio.New(make([]byte, 4))

	a := v.NewID()
	b := v.NewID()

	if b <= a {
		t.Errorf("expected NewID to increase, got %d then %d", a, b)
	}
}

func TestBadWidthFaults(t *testing.T) {
	v := virtio.New(make([]byte, 4))

	if _, err := v.Load(virtio.MagicOffset, 1); err == nil {
		t.Error("expected fault for 1-byte load")
	}

	if err := v.Store(virtio.StatusOffset, 8, 1); err == nil {
		t.Error("expected fault for 8-byte store")
	}
}
