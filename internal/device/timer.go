package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/smoynes/rv64/internal/csr"
)

// Timer is the machine-mode timer device: a single free-running wall-clock
// register at offset 0 (mtime) followed by one 8-byte mtimecmp register per
// hart, laid out exactly as the original implementation's vmstate/timer.rs
// MTimer (offset 0 is global time, offset (n+1)*8 is hart n's compare
// value). Crossing mtime >= mtimecmp sets that hart's MTIP bit in its
// shared InterruptBits handle.
type Timer struct {
	mu      sync.Mutex
	epoch   time.Time
	cmp     []uint64 // microseconds; 0 means disarmed
	mip     []*csr.InterruptBits
	hartIDs []uint64
}

// NewTimer creates a timer for the given harts' interrupt-pending bitsets,
// indexed in hart order.
func NewTimer(hartIDs []uint64, mip []*csr.InterruptBits) *Timer {
	return &Timer{
		epoch:   time.Now(),
		cmp:     make([]uint64, len(hartIDs)),
		mip:     mip,
		hartIDs: hartIDs,
	}
}

func (t *Timer) nowMicros() uint64 {
	return uint64(time.Since(t.epoch).Microseconds())
}

// ReadBytes implements memory.Device.
func (t *Timer) ReadBytes(offset uint64, size int) ([]byte, error) {
	if offset%8 != 0 {
		return nil, fmt.Errorf("timer: unaligned read at offset %#x", offset)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var v uint64

	if offset == 0 {
		v = t.nowMicros()
	} else {
		idx := int(offset/8) - 1
		if idx < 0 || idx >= len(t.cmp) {
			return nil, fmt.Errorf("timer: read offset %#x out of range", offset)
		}

		v = t.cmp[idx]
	}

	return leBytes(v, size), nil
}

// WriteBytes implements memory.Device.
func (t *Timer) WriteBytes(offset uint64, data []byte) error {
	if offset%8 != 0 {
		return fmt.Errorf("timer: unaligned write at offset %#x", offset)
	}

	v := leUint64(data)

	t.mu.Lock()
	defer t.mu.Unlock()

	if offset == 0 {
		t.epoch = time.Now().Add(-time.Duration(v) * time.Microsecond)
		t.checkAllLocked()

		return nil
	}

	idx := int(offset/8) - 1
	if idx < 0 || idx >= len(t.cmp) {
		return fmt.Errorf("timer: write offset %#x out of range", offset)
	}

	t.cmp[idx] = v
	t.checkLocked(idx)

	return nil
}

func (t *Timer) checkLocked(idx int) {
	now := t.nowMicros()

	if t.cmp[idx] != 0 && uint64(t.cmp[idx]) <= now {
		t.mip[idx].SetBit(csr.InterruptMachineTimer)
	} else {
		t.mip[idx].ClearBit(csr.InterruptMachineTimer)
	}
}

func (t *Timer) checkAllLocked() {
	for i := range t.cmp {
		t.checkLocked(i)
	}
}

// Tick re-evaluates every hart's compare register against the current time,
// setting MTIP for any hart whose deadline has passed. Callers run this
// periodically (vmstate.VM.Step calls it once per round) since nothing else
// re-evaluates the deadlines on its own.
func (t *Timer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAllLocked()
}

func leBytes(v uint64, size int) []byte {
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(v >> (8 * i))
	}

	return buf
}

func leUint64(b []byte) uint64 {
	var buf [8]byte

	copy(buf[:], b)

	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}

	return v
}
