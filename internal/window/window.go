// Package window composes address translation (paging), physical memory
// protection (pmp) and physical memory (memory) into the three operations
// a hart actually issues: fetch, load and store. It is the RISC-V analogue
// of the teacher's MAR/MDR-mediated Memory.Fetch/Store
// (smoynes/elsie internal/vm/mem.go), generalized because RV64 has no
// single accumulator register and must distinguish the three PMP access
// modes and the Sv39/48/57 translation schemes per access.
package window

import (
	"errors"
	"fmt"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/memory"
	"github.com/smoynes/rv64/internal/paging"
	"github.com/smoynes/rv64/internal/pmp"
)

// Fault classifies a failed access so the caller can raise the matching
// exception cause.
type Fault int

const (
	FaultNone Fault = iota
	FaultAccess
	FaultPage
	FaultMisaligned
)

// Error wraps a failed access with its classification and faulting address.
type Error struct {
	Fault Fault
	Addr  addr.Address
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("window: %v at %s: %v", e.Fault, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (f Fault) String() string {
	switch f {
	case FaultAccess:
		return "access fault"
	case FaultPage:
		return "page fault"
	case FaultMisaligned:
		return "misaligned"
	default:
		return "none"
	}
}

// Window is a single hart's view into physical memory: its CSR bank (for
// satp and the MPRV/SUM/MXR bits), its PMP bank, and the shared physical
// memory it and every other hart address.
type Window struct {
	CSR *csr.Bank
	PMP *pmp.PMP
	Mem *memory.Memory
}

// effectivePrivilege returns the privilege level memory accesses are
// checked against: normally the hart's current level, but loads/stores (not
// fetches) observe mstatus.MPRV, which substitutes MPP while executing in
// M-mode for the purpose of address translation and protection checks.
func (w *Window) effectivePrivilege(curPriv csr.Privilege, isFetch bool) csr.Privilege {
	if !isFetch && curPriv == csr.Machine && w.CSR.MStatus.MPRV {
		return w.CSR.MStatus.MPP
	}

	return curPriv
}

func (w *Window) translate(a addr.Address, priv csr.Privilege, mode pmp.AccessMode) (addr.Address, error) {
	if priv == csr.Machine || w.CSR.SATP.Mode == csr.Bare {
		return a, nil
	}

	ctx := paging.Context{
		Privilege: pmp.Privilege(priv),
		Mode:      mode,
		MXR:       w.CSR.MStatus.MXR,
		SUM:       w.CSR.MStatus.SUM,
	}

	phys, err := paging.Walk(a, paging.Mode(w.CSR.SATP.Mode), w.CSR.SATP.PPN, w.Mem, ctx)
	if err != nil {
		if errors.Is(err, paging.ErrPageFault) {
			return 0, &Error{Fault: FaultPage, Addr: a, Err: err}
		}

		return 0, &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return phys, nil
}

func (w *Window) checkPMP(a addr.Address, priv csr.Privilege, mode pmp.AccessMode) error {
	if !w.PMP.Check(a, pmp.Privilege(priv), mode) {
		return &Error{Fault: FaultAccess, Addr: a, Err: fmt.Errorf("pmp denied")}
	}

	return nil
}

func (w *Window) resolve(a addr.Address, size int, curPriv csr.Privilege, isFetch bool, mode pmp.AccessMode) (addr.Address, error) {
	priv := w.effectivePrivilege(curPriv, isFetch)

	phys, err := w.translate(a, priv, mode)
	if err != nil {
		return 0, err
	}

	if err := w.checkPMP(phys, priv, mode); err != nil {
		return 0, err
	}

	return phys, nil
}

// Fetch reads size bytes (2 or 4, for C or non-C instructions) at virtual
// address a for instruction execution at the given privilege level.
func (w *Window) Fetch(a addr.Address, size int, priv csr.Privilege) ([]byte, error) {
	phys, err := w.resolve(a, size, priv, true, pmp.Exec)
	if err != nil {
		return nil, err
	}

	data, err := w.Mem.ReadPhys(phys, size)
	if err != nil {
		return nil, &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return data, nil
}

// Load reads size bytes of data at the given privilege level.
func (w *Window) Load(a addr.Address, size int, priv csr.Privilege) ([]byte, error) {
	phys, err := w.resolve(a, size, priv, false, pmp.Read)
	if err != nil {
		return nil, err
	}

	data, err := w.Mem.ReadPhys(phys, size)
	if err != nil {
		return nil, &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return data, nil
}

// Store writes data at the given privilege level.
func (w *Window) Store(a addr.Address, data []byte, priv csr.Privilege) error {
	phys, err := w.resolve(a, len(data), priv, false, pmp.Write)
	if err != nil {
		return err
	}

	if err := w.Mem.WritePhys(phys, data); err != nil {
		return &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return nil
}

// LoadReserved performs an LR at the given privilege level.
func (w *Window) LoadReserved(hart uint64, a addr.Address, size int, priv csr.Privilege) ([]byte, error) {
	phys, err := w.resolve(a, size, priv, false, pmp.Read)
	if err != nil {
		return nil, err
	}

	data, err := w.Mem.LoadReserved(hart, phys, size)
	if err != nil {
		return nil, &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return data, nil
}

// StoreConditional performs an SC at the given privilege level.
func (w *Window) StoreConditional(hart uint64, a addr.Address, size int, data []byte, priv csr.Privilege) (bool, error) {
	phys, err := w.resolve(a, size, priv, false, pmp.Write)
	if err != nil {
		return false, err
	}

	ok, err := w.Mem.StoreConditional(hart, phys, size, data)
	if err != nil {
		return false, &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return ok, nil
}

// AtomicRMW performs an AMO at the given privilege level.
func (w *Window) AtomicRMW(a addr.Address, size int, priv csr.Privilege, fn func(old uint64) uint64) (uint64, error) {
	phys, err := w.resolve(a, size, priv, false, pmp.Write)
	if err != nil {
		return 0, err
	}

	old, err := w.Mem.AtomicRMW(phys, size, fn)
	if err != nil {
		return 0, &Error{Fault: FaultAccess, Addr: a, Err: err}
	}

	return old, nil
}
