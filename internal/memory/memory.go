// Package memory is the physical memory subsystem: flat RAM, memory-mapped
// device regions, and the LR/SC reservation table used by the atomic
// extension.
//
// Grounded on the teacher's Memory/MMIO split (smoynes/elsie
// internal/vm/mem.go), whose MAR/MDR-mediated Fetch/Store is generalized
// here into direct ReadPhys/WritePhys calls (RISC-V has no single
// accumulator register gating memory access the way the teacher's LC-3 data
// path does), and on the original Rust implementation's region/device
// overlap bookkeeping (_examples/original_source's memory/memory_map.rs and
// memory/mem_map_device.rs).
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/log"
)

// Sentinel errors, mirroring the original implementation's MemoryError enum
// (OutOfBoundsRead/Write, OutOfMemory, DeviceMemoryPoison) so callers can use
// errors.Is to decide which trap cause applies.
var (
	ErrOutOfBounds  = errors.New("memory: address out of bounds")
	ErrOverlap      = errors.New("memory: region overlaps an existing mapping")
	ErrDevicePoison = errors.New("memory: device region in a poisoned state")
)

// Device is a memory-mapped device's byte-addressable backing store. Offsets
// passed in are already relative to the device's base address.
type Device interface {
	ReadBytes(offset uint64, size int) ([]byte, error)
	WriteBytes(offset uint64, data []byte) error
}

type region struct {
	span addr.Range
	dev  Device // nil for the RAM region
}

// Memory is the flat physical address space shared by every hart in a VM.
type Memory struct {
	log *log.Logger

	ram     []byte
	ramSpan addr.Range

	mu      sync.RWMutex
	devices []region

	reservations reservations
}

// New creates physical memory of size bytes based at base, with no device
// regions mapped yet.
func New(base addr.Address, size int) *Memory {
	return &Memory{
		log:     log.DefaultLogger(),
		ram:     make([]byte, size),
		ramSpan: addr.Range{Start: base, End: base.Add(int64(size))},
		reservations: reservations{
			entries: make(map[uint64]reservation),
		},
	}
}

// MapDevice registers dev as backing the given physical address range. It
// fails if the range overlaps RAM or any previously mapped device, following
// the original implementation's add_mem_map_device overlap check.
func (m *Memory) MapDevice(span addr.Range, dev Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ramSpan.Overlaps(span) {
		return fmt.Errorf("%w: %s overlaps ram %s", ErrOverlap, span, m.ramSpan)
	}

	for _, r := range m.devices {
		if r.span.Overlaps(span) {
			return fmt.Errorf("%w: %s overlaps device region %s", ErrOverlap, span, r.span)
		}
	}

	m.devices = append(m.devices, region{span: span, dev: dev})
	m.log.Debug("memory: mapped device", "range", span.String())

	return nil
}

func (m *Memory) find(a addr.Address, size int) (*region, bool) {
	span := addr.Range{Start: a, End: a.Add(int64(size))}

	for i := range m.devices {
		if m.devices[i].span.ContainsRange(span) {
			return &m.devices[i], true
		}
	}

	return nil, false
}

// ReadPhys reads size bytes at physical address a. It satisfies
// paging.PhysReader.
func (m *Memory) ReadPhys(a addr.Address, size int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.find(a, size); ok {
		off := uint64(a.Sub(r.span.Start))
		return r.dev.ReadBytes(off, size)
	}

	if !m.ramSpan.ContainsRange(addr.Range{Start: a, End: a.Add(int64(size))}) {
		return nil, fmt.Errorf("%w: read %s len %d", ErrOutOfBounds, a, size)
	}

	off := uint64(a.Sub(m.ramSpan.Start))

	return append([]byte(nil), m.ram[off:off+uint64(size)]...), nil
}

// WritePhys writes data to physical address a, invalidating any LR
// reservation (from any hart) that overlaps the write.
func (m *Memory) WritePhys(a addr.Address, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.find(a, len(data)); ok {
		off := uint64(a.Sub(r.span.Start))
		m.reservations.invalidate(a, len(data))

		return r.dev.WriteBytes(off, data)
	}

	if !m.ramSpan.ContainsRange(addr.Range{Start: a, End: a.Add(int64(len(data)))}) {
		return fmt.Errorf("%w: write %s len %d", ErrOutOfBounds, a, len(data))
	}

	off := uint64(a.Sub(m.ramSpan.Start))
	copy(m.ram[off:off+uint64(len(data))], data)
	m.reservations.invalidate(a, len(data))

	return nil
}

// LoadReserved performs the memory read for an LR instruction and records a
// reservation for hart at the given address and width (4 or 8 bytes), per
// spec.md's atomics module.
func (m *Memory) LoadReserved(hart uint64, a addr.Address, size int) ([]byte, error) {
	data, err := m.ReadPhys(a, size)
	if err != nil {
		return nil, err
	}

	m.reservations.set(hart, a, size)

	return data, nil
}

// StoreConditional performs the memory write for an SC instruction if and
// only if hart still holds a matching reservation at a. It reports whether
// the store happened.
func (m *Memory) StoreConditional(hart uint64, a addr.Address, size int, data []byte) (bool, error) {
	m.mu.Lock()
	ok := m.reservations.checkAndClear(hart, a, size)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}

	return true, m.WritePhys(a, data)
}

// AtomicRMW performs a read-modify-write of size bytes at a under the
// memory-wide lock, for the AMO* instructions. fn receives the prior value
// (zero-extended) and returns the value to store.
func (m *Memory) AtomicRMW(a addr.Address, size int, fn func(old uint64) uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.readLocked(a, size)
	if err != nil {
		return 0, err
	}

	old := le(raw)
	newVal := fn(old)

	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(newVal >> (8 * i))
	}

	if err := m.writeLocked(a, buf); err != nil {
		return 0, err
	}

	return old, nil
}

func (m *Memory) readLocked(a addr.Address, size int) ([]byte, error) {
	if r, ok := m.find(a, size); ok {
		off := uint64(a.Sub(r.span.Start))
		return r.dev.ReadBytes(off, size)
	}

	if !m.ramSpan.ContainsRange(addr.Range{Start: a, End: a.Add(int64(size))}) {
		return nil, fmt.Errorf("%w: read %s len %d", ErrOutOfBounds, a, size)
	}

	off := uint64(a.Sub(m.ramSpan.Start))

	return append([]byte(nil), m.ram[off:off+uint64(size)]...), nil
}

func (m *Memory) writeLocked(a addr.Address, data []byte) error {
	if r, ok := m.find(a, len(data)); ok {
		off := uint64(a.Sub(r.span.Start))
		m.reservations.invalidate(a, len(data))

		return r.dev.WriteBytes(off, data)
	}

	if !m.ramSpan.ContainsRange(addr.Range{Start: a, End: a.Add(int64(len(data)))}) {
		return fmt.Errorf("%w: write %s len %d", ErrOutOfBounds, a, len(data))
	}

	off := uint64(a.Sub(m.ramSpan.Start))
	copy(m.ram[off:off+uint64(len(data))], data)
	m.reservations.invalidate(a, len(data))

	return nil
}

// LoadELFSegment copies raw segment bytes from a loaded image into physical
// memory through WritePhys, so bytes that land in a mapped device region go
// to that device; used once at VM construction time.
func (m *Memory) LoadELFSegment(a addr.Address, data []byte) error {
	return m.WritePhys(a, data)
}

func le(b []byte) uint64 {
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}

	return v
}

// reservation is one hart's outstanding LR reservation.
type reservation struct {
	addr  addr.Address
	size  int
	valid bool
}

// reservations tracks one LR/SC reservation per hart. A store from any hart
// that overlaps a reservation invalidates it, per spec.md's atomics module
// and the original implementation's single-writer invalidation rule.
type reservations struct {
	entries map[uint64]reservation
}

func (r *reservations) set(hart uint64, a addr.Address, size int) {
	r.entries[hart] = reservation{addr: a, size: size, valid: true}
}

func (r *reservations) checkAndClear(hart uint64, a addr.Address, size int) bool {
	res, ok := r.entries[hart]
	delete(r.entries, hart)

	return ok && res.valid && res.addr == a && res.size == size
}

func (r *reservations) invalidate(a addr.Address, size int) {
	span := addr.Range{Start: a, End: a.Add(int64(size))}

	for hart, res := range r.entries {
		resSpan := addr.Range{Start: res.addr, End: res.addr.Add(int64(res.size))}
		if resSpan.Overlaps(span) {
			delete(r.entries, hart)
		}
	}
}
