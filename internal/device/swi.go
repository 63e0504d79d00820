package device

import (
	"fmt"

	"github.com/smoynes/rv64/internal/csr"
)

// SoftwareInterrupt is the software-interrupt register device: one 8-byte
// register per hart, where writing an odd low byte sets that hart's
// software-interrupt pending bit and an even low byte clears it. A single
// instance serves either the machine-level (MSIP) or supervisor-level
// (SSIP) register file, matching the original implementation's
// SwiController, which is likewise parameterized by a fixed privilege mode
// at construction (_examples/original_source's vmstate/swi_controller.rs).
type SoftwareInterrupt struct {
	bit int // csr.InterruptMachineSoftware or csr.InterruptSupervisorSoftware
	mip []*csr.InterruptBits
}

// NewSoftwareInterrupt creates a software-interrupt register file for the
// given harts' interrupt-pending bitsets, targeting the given interrupt
// bit (csr.InterruptMachineSoftware or csr.InterruptSupervisorSoftware).
func NewSoftwareInterrupt(bit int, mip []*csr.InterruptBits) *SoftwareInterrupt {
	return &SoftwareInterrupt{bit: bit, mip: mip}
}

// ReadBytes implements memory.Device.
func (s *SoftwareInterrupt) ReadBytes(offset uint64, size int) ([]byte, error) {
	if offset%8 != 0 {
		return nil, fmt.Errorf("swi: unaligned read at offset %#x", offset)
	}

	idx := int(offset / 8)
	if idx < 0 || idx >= len(s.mip) {
		return nil, fmt.Errorf("swi: read offset %#x out of range", offset)
	}

	buf := make([]byte, size)

	if s.mip[idx].Load()&(1<<s.bit) != 0 {
		buf[0] = 1
	}

	return buf, nil
}

// WriteBytes implements memory.Device.
func (s *SoftwareInterrupt) WriteBytes(offset uint64, data []byte) error {
	if offset%8 != 0 {
		return fmt.Errorf("swi: unaligned write at offset %#x", offset)
	}

	idx := int(offset / 8)
	if idx < 0 || idx >= len(s.mip) {
		return fmt.Errorf("swi: write offset %#x out of range", offset)
	}

	if len(data) == 0 {
		return nil
	}

	if data[0]%2 == 1 {
		s.mip[idx].SetBit(s.bit)
	} else {
		s.mip[idx].ClearBit(s.bit)
	}

	return nil
}
