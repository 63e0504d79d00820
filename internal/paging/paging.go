// Package paging implements the Sv39/Sv48/Sv57 page table walker.
//
// Grounded on the original Rust implementation's memory/paging.rs
// (blackdragon2447/riscv_vm, _examples/original_source), which spec.md's
// paging module distills; the per-level walk, the leaf permission checks
// (U/SUM/MXR, R/W/X, A/D) and the superpage-misalignment check below follow
// that algorithm, expressed with a single 44-bit PPN and a level loop
// instead of the original's three parallel Sv39/Sv48/Sv57 struct variants —
// idiomatic in Go, where the PTE PPN field is the same width at every mode
// and only the VPN level count differs.
package paging

import (
	"errors"
	"fmt"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/log"
	"github.com/smoynes/rv64/internal/pmp"
)

var logger = log.DefaultLogger()

// Mode selects the translation scheme. Numeric values match the satp.MODE
// encoding (csr.SatpMode) so callers can convert directly.
type Mode uint8

const (
	Bare Mode = 0
	Sv39 Mode = 8
	Sv48 Mode = 9
	Sv57 Mode = 10
)

// levels returns the number of page table levels for mode.
func (m Mode) levels() int {
	switch m {
	case Sv39:
		return 3
	case Sv48:
		return 4
	case Sv57:
		return 5
	default:
		return 0
	}
}

const pageSize = 4096
const pteSize = 8

// pteFlag bits, per the standard PTE layout shared by Sv39/48/57.
const (
	flagV = 1 << 0
	flagR = 1 << 1
	flagW = 1 << 2
	flagX = 1 << 3
	flagU = 1 << 4
	flagG = 1 << 5
	flagA = 1 << 6
	flagD = 1 << 7
)

// ErrPageFault is returned for an architectural page fault: the caller must
// deliver the corresponding *PageFault exception (Instruction/Load/Store)
// rather than treating this as a host error.
var ErrPageFault = errors.New("paging: page fault")

// ErrAccessFault is returned when the underlying physical read of a PTE
// itself fails (out-of-range page table location).
var ErrAccessFault = errors.New("paging: access fault")

// PhysReader reads raw physical memory; internal/memory satisfies this via
// its non-translating physical access path.
type PhysReader interface {
	ReadPhys(a addr.Address, n int) ([]byte, error)
}

// Context carries the access-control inputs that affect leaf permission
// checks but are not inherent to the virtual address itself.
type Context struct {
	Privilege pmp.Privilege
	Mode      pmp.AccessMode
	MXR       bool // Make eXecutable Readable
	SUM       bool // permit Supervisor User Memory access
}

// vpn extracts the i'th 9-bit virtual page number field (i=0 is least
// significant) from a virtual address.
func vpn(va addr.Address, i int) uint64 {
	return (va.Uint64() >> (12 + 9*i)) & 0x1FF
}

// fault logs and wraps a page-fault reason, so Walk's many distinct fault
// conditions still leave a trace of which one fired without each caller
// threading its own Logger through.
func fault(va addr.Address, reason string) error {
	logger.Debug("paging: page fault", "va", va, "reason", reason)
	return fmt.Errorf("%w: %s", ErrPageFault, reason)
}

// Walk translates a virtual address to a physical one. ppn is satp.PPN
// (the root page table's page number); mode must not be Bare (callers skip
// translation entirely in that case).
func Walk(va addr.Address, mode Mode, ppn uint64, mem PhysReader, ctx Context) (addr.Address, error) {
	if ctx.Privilege == pmp.Machine {
		return 0, fmt.Errorf("paging: walk invoked in machine mode")
	}

	levels := mode.levels()
	if levels == 0 {
		return 0, fmt.Errorf("paging: walk invoked with mode %d", mode)
	}

	vaBits := uint(12 + 9*levels)
	if addr.SignExtend(va.Uint64(), vaBits) != int64(va.Uint64()) {
		return 0, fault(va, fmt.Sprintf("non-canonical virtual address %s", va))
	}

	a := ppn * pageSize
	i := levels - 1

	for {
		raw, err := mem.ReadPhys(addr.Address(a+vpn(va, i)*pteSize), pteSize)
		if err != nil {
			return 0, fmt.Errorf("%w: reading pte at level %d: %v", ErrAccessFault, i, err)
		}

		pte := le64(raw)
		flags := pte & 0xFF
		ptePPN := (pte >> 10) & 0xFFF_FFFF_FFFF // bits [53:10], 44 bits

		if flags&flagV == 0 || (flags&flagW != 0 && flags&flagR == 0) {
			return 0, fault(va, fmt.Sprintf("invalid pte at level %d", i))
		}

		if flags&(flagR|flagX) == 0 {
			// Pointer to the next level.
			if i == 0 {
				return 0, fault(va, "page table exhausted below level 0")
			}

			a = ptePPN * pageSize
			i--

			continue
		}

		// Leaf PTE: apply U/SUM/MXR and R/W/X permission checks.
		isUserPage := flags&flagU != 0

		visible := (isUserPage && (ctx.Privilege == pmp.User || ctx.SUM)) ||
			(!isUserPage && ctx.Privilege == pmp.Supervisor)
		if !visible {
			return 0, fault(va, "page not visible to privilege")
		}

		switch ctx.Mode {
		case pmp.Read:
			if flags&flagR == 0 && !(flags&flagX != 0 && ctx.MXR) {
				return 0, fault(va, "page not readable")
			}
		case pmp.Write:
			if flags&flagW == 0 || flags&flagD == 0 {
				return 0, fault(va, "page not writable or dirty bit clear")
			}
		case pmp.Exec:
			if flags&flagX == 0 || (isUserPage && ctx.Privilege == pmp.Supervisor) {
				return 0, fault(va, "page not executable")
			}
		}

		if flags&flagA == 0 {
			return 0, fault(va, "accessed bit clear")
		}

		if i != 0 && (ptePPN&((uint64(1)<<(9*i))-1)) != 0 {
			return 0, fault(va, "misaligned superpage")
		}

		pa := va.Uint64() & 0xFFF // page offset
		for j := 0; j < i; j++ {
			pa |= vpn(va, j) << (12 + 9*j)
		}

		for j := i; j < levels; j++ {
			bits := (ptePPN >> (9 * j)) & 0x1FF
			pa |= bits << (12 + 9*j)
		}

		return addr.Address(pa), nil
	}
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}

	return v
}
