package vmstate

import (
	"fmt"
	"strings"
	"sync"
)

// VGA text mode is out of scope per spec.md §1 ("the graphical VGA
// device ... treated as an external collaborator"); VGAText gives it the
// minimal concrete body needed for the VM to have somewhere to route
// --graphics-mode=vga-text writes: a byte buffer in the classic 80x25,
// two-bytes-per-cell (character, attribute) layout, with a Render method
// a front-end can call to get the current screen as text. No actual
// windowing or color rendering is attempted.
const (
	vgaColumns = 80
	vgaRows    = 25

	// VGATextBufferSize is the byte size of the standard 80x25 VGA text
	// buffer (character + attribute byte per cell).
	VGATextBufferSize = vgaColumns * vgaRows * 2
)

// VGAText is a memory.Device backing a VGA-compatible text buffer.
type VGAText struct {
	mu  sync.RWMutex
	buf [VGATextBufferSize]byte
}

// NewVGAText creates an empty (space-filled) text buffer.
func NewVGAText() *VGAText {
	v := &VGAText{}

	for i := 0; i < VGATextBufferSize; i += 2 {
		v.buf[i] = ' '
	}

	return v
}

// ReadBytes implements memory.Device.
func (v *VGAText) ReadBytes(offset uint64, size int) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if offset+uint64(size) > VGATextBufferSize {
		return nil, fmt.Errorf("vga: read offset %#x len %d out of range", offset, size)
	}

	return append([]byte(nil), v.buf[offset:offset+uint64(size)]...), nil
}

// WriteBytes implements memory.Device.
func (v *VGAText) WriteBytes(offset uint64, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if offset+uint64(len(data)) > VGATextBufferSize {
		return fmt.Errorf("vga: write offset %#x len %d out of range", offset, len(data))
	}

	copy(v.buf[offset:], data)

	return nil
}

// Render returns the current screen contents as vgaRows lines of
// vgaColumns characters, discarding attribute bytes.
func (v *VGAText) Render() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var b strings.Builder

	for row := 0; row < vgaRows; row++ {
		for col := 0; col < vgaColumns; col++ {
			ch := v.buf[(row*vgaColumns+col)*2]
			if ch == 0 {
				ch = ' '
			}

			b.WriteByte(ch)
		}

		b.WriteByte('\n')
	}

	return b.String()
}
