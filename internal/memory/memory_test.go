package memory

import (
	"errors"
	"testing"

	"github.com/smoynes/rv64/internal/addr"
)

func TestReadWritePhysRoundTrip(t *testing.T) {
	m := New(0x8000_0000, 4096)

	want := []byte{0x01, 0x02, 0x03, 0x04}
	if err := m.WritePhys(0x8000_0010, want); err != nil {
		t.Fatalf("WritePhys: %v", err)
	}

	got, err := m.ReadPhys(0x8000_0010, 4)
	if err != nil {
		t.Fatalf("ReadPhys: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: want %#x, got %#x", i, want[i], got[i])
		}
	}
}

func TestReadPhysOutOfBounds(t *testing.T) {
	m := New(0x8000_0000, 4096)

	_, err := m.ReadPhys(0x9000_0000, 4)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("want ErrOutOfBounds, got %v", err)
	}
}

type fakeDevice struct {
	data []byte
}

func (d *fakeDevice) ReadBytes(offset uint64, size int) ([]byte, error) {
	return append([]byte(nil), d.data[offset:offset+uint64(size)]...), nil
}

func (d *fakeDevice) WriteBytes(offset uint64, data []byte) error {
	copy(d.data[offset:], data)
	return nil
}

func TestMapDeviceRejectsOverlap(t *testing.T) {
	m := New(0x8000_0000, 4096)

	dev := &fakeDevice{data: make([]byte, 16)}
	if err := m.MapDevice(addr.Range{Start: 0x1000, End: 0x1010}, dev); err != nil {
		t.Fatalf("MapDevice: %v", err)
	}

	err := m.MapDevice(addr.Range{Start: 0x1008, End: 0x1020}, dev)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("want ErrOverlap, got %v", err)
	}

	err = m.MapDevice(addr.Range{Start: 0x7FFF_FFF0, End: 0x8000_0010}, dev)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("want ErrOverlap for ram-overlapping device, got %v", err)
	}
}

func TestMapDeviceReadWrite(t *testing.T) {
	m := New(0x8000_0000, 4096)

	dev := &fakeDevice{data: make([]byte, 16)}
	if err := m.MapDevice(addr.Range{Start: 0x1000, End: 0x1010}, dev); err != nil {
		t.Fatalf("MapDevice: %v", err)
	}

	if err := m.WritePhys(0x1004, []byte{0xAA}); err != nil {
		t.Fatalf("WritePhys to device: %v", err)
	}

	if dev.data[4] != 0xAA {
		t.Errorf("device backing store: want 0xAA at offset 4, got %#x", dev.data[4])
	}

	got, err := m.ReadPhys(0x1004, 1)
	if err != nil {
		t.Fatalf("ReadPhys from device: %v", err)
	}

	if got[0] != 0xAA {
		t.Errorf("read back: want 0xAA, got %#x", got[0])
	}
}

func TestLoadReservedStoreConditional(t *testing.T) {
	m := New(0x8000_0000, 4096)

	if err := m.WritePhys(0x8000_0020, []byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	if _, err := m.LoadReserved(1, 0x8000_0020, 4); err != nil {
		t.Fatalf("LoadReserved: %v", err)
	}

	ok, err := m.StoreConditional(1, 0x8000_0020, 4, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("StoreConditional: %v", err)
	}

	if !ok {
		t.Fatal("StoreConditional: want success on matching reservation")
	}

	// The reservation is consumed; a second SC without a fresh LR must fail.
	ok, err = m.StoreConditional(1, 0x8000_0020, 4, []byte{5, 6, 7, 8})
	if err != nil {
		t.Fatalf("second StoreConditional: %v", err)
	}

	if ok {
		t.Fatal("StoreConditional: want failure, reservation already consumed")
	}
}

func TestStoreConditionalInvalidatedByOtherHartWrite(t *testing.T) {
	m := New(0x8000_0000, 4096)

	if _, err := m.LoadReserved(1, 0x8000_0030, 4); err != nil {
		t.Fatalf("LoadReserved: %v", err)
	}

	// Hart 2 writes the same address, invalidating hart 1's reservation.
	if err := m.WritePhys(0x8000_0030, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("WritePhys: %v", err)
	}

	ok, err := m.StoreConditional(1, 0x8000_0030, 4, []byte{1, 1, 1, 1})
	if err != nil {
		t.Fatalf("StoreConditional: %v", err)
	}

	if ok {
		t.Fatal("StoreConditional: want failure after reservation invalidated by another write")
	}
}

func TestAtomicRMW(t *testing.T) {
	m := New(0x8000_0000, 4096)

	if err := m.WritePhys(0x8000_0040, []byte{5, 0, 0, 0}); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	old, err := m.AtomicRMW(0x8000_0040, 4, func(old uint64) uint64 { return old + 10 })
	if err != nil {
		t.Fatalf("AtomicRMW: %v", err)
	}

	if old != 5 {
		t.Errorf("AtomicRMW returned old value: want 5, got %d", old)
	}

	got, err := m.ReadPhys(0x8000_0040, 4)
	if err != nil {
		t.Fatalf("ReadPhys: %v", err)
	}

	if got[0] != 15 {
		t.Errorf("AtomicRMW result: want 15, got %d", got[0])
	}
}
