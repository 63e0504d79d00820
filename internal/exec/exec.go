// Package exec runs the fetch/decode/execute/trap loop for a single hart,
// dispatching each decode.Instruction to the handler for its Op.
//
// Grounded on the original Rust implementation's per-extension execute
// modules (_examples/original_source's execute/rv32i.rs, rv32m.rs,
// rv32a.rs, rv32f.rs, rv32d.rs, rv64*.rs, rv64zicsr.rs) and hart/mod.rs's
// Hart::step, generalized from per-opcode free functions taking
// macro-generated register references into methods on a Hart that hold the
// integer/float register files, CSR bank and memory window directly —
// Go has no equivalent to the riscv_vm_macros::inst! code-generation macro,
// so each handler addresses its operands explicitly.
package exec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/decode"
	"github.com/smoynes/rv64/internal/log"
	"github.com/smoynes/rv64/internal/regs"
	"github.com/smoynes/rv64/internal/trap"
	"github.com/smoynes/rv64/internal/window"
)

// Exception signals that an instruction must trap with the given cause and
// trap value, rather than complete normally.
type Exception struct {
	Cause uint64
	Tval  uint64
}

func (e *Exception) Error() string {
	return fmt.Sprintf("exception: cause=%d tval=%#x", e.Cause, e.Tval)
}

// ErrWaitForInterrupt is returned by Step when the hart has executed WFI
// while no interrupt is both pending and enabled (mip&mie == 0); the PC has
// already moved past the WFI. Callers treat it as "nothing more to do this
// tick".
var ErrWaitForInterrupt = errors.New("exec: wait for interrupt")

// Hart is one RISC-V hart's complete execution state: its register files,
// CSR bank, program counter, current privilege level, and the memory
// window it issues fetches/loads/stores through.
type Hart struct {
	ID   uint64
	PC   addr.Address
	Priv csr.Privilege

	Int   regs.IntFile
	Float regs.FloatFile

	CSR *csr.Bank
	Win *window.Window

	log *log.Logger

	// Not read or written: LR/SC reservations are held in the shared
	// memory.Memory reservation table.
	haveReservation bool
}

// LogValue implements slog.LogValuer, so a caller logging a Hart (e.g.
// h.log.Debug("STEP", log.Group("STATE", h.LogValue()))) gets its PC,
// privilege and GPRs rendered as one grouped attribute instead of a raw
// pointer.
func (h *Hart) LogValue() slog.Value {
	return log.GroupValue(
		log.String("pc", h.PC.String()),
		log.Any("priv", h.Priv),
		log.String("x", h.Int.String()),
	)
}

// New creates a hart at the given ID, starting in machine mode at the given
// program counter.
func New(id uint64, bank *csr.Bank, win *window.Window, pc addr.Address) *Hart {
	return &Hart{
		ID:   id,
		PC:   pc,
		Priv: csr.Machine,
		CSR:  bank,
		Win:  win,
		log:  log.DefaultLogger().With("hart", id),
	}
}

// Step fetches, decodes and executes a single instruction, then checks for
// and delivers a pending interrupt. It never returns an error for a trap,
// including a fault while fetching the instruction bits: traps are
// delivered internally and execution resumes at the vector on the next
// call. The return value only ever reports a non-trap condition such as
// ErrWaitForInterrupt.
func (h *Hart) Step() error {
	if tr, ok := trap.Pending(h.CSR, h.Priv); ok {
		h.deliver(tr)
		return nil
	}

	raw16, err := h.Win.Fetch(h.PC, 2, h.Priv)
	if err != nil {
		h.fault(err, csr.CauseInstructionAccessFault, csr.CauseInstructionPageFault, uint64(h.PC))
		return nil
	}

	low := uint16(raw16[0]) | uint16(raw16[1])<<8

	var inst decode.Instruction

	if low&0b11 == 0b11 {
		raw32, err := h.Win.Fetch(h.PC, 4, h.Priv)
		if err != nil {
			h.fault(err, csr.CauseInstructionAccessFault, csr.CauseInstructionPageFault, uint64(h.PC))
			return nil
		}

		word := uint32(raw32[0]) | uint32(raw32[1])<<8 | uint32(raw32[2])<<16 | uint32(raw32[3])<<24
		inst = decode.Decode32(word)
	} else {
		inst = decode.Decode16(low)
	}

	if inst.Op == decode.Undefined {
		h.raise(csr.CauseIllegalInstruction, uint64(inst.Raw))
		return nil
	}

	nextPC := h.PC.Add(int64(inst.Length))

	h.log.Debug("STEP", log.Group("STATE", log.Any("op", inst.Op), "hart", h))

	if err := h.execute(inst, nextPC); err != nil {
		var ex *Exception
		if errors.As(err, &ex) {
			h.raise(ex.Cause, ex.Tval)
			return nil
		}

		var werr *window.Error
		if errors.As(err, &werr) {
			h.faultFromWindow(werr, true)
			return nil
		}

		return err
	}

	return nil
}

// fault classifies a window.Error (already produced by Fetch/Load/Store)
// into the matching exception cause and raises it.
func (h *Hart) fault(err error, accessCause, pageCause uint64, tval uint64) {
	var werr *window.Error
	if errors.As(err, &werr) {
		h.raiseFault(werr, accessCause, pageCause, tval)
		return
	}

	h.raise(accessCause, tval)
}

func (h *Hart) raiseFault(werr *window.Error, accessCause, pageCause uint64, tval uint64) {
	if werr.Fault == window.FaultPage {
		h.raise(pageCause, tval)
		return
	}

	h.raise(accessCause, tval)
}

// faultFromWindow raises the right exception for a load/store/AMO window
// error encountered mid-execute (after fetch), using the access's addr.
func (h *Hart) faultFromWindow(err error, isStore bool) {
	var accessCause, pageCause uint64

	switch {
	case isStore:
		accessCause, pageCause = csr.CauseStoreAccessFault, csr.CauseStorePageFault
	default:
		accessCause, pageCause = csr.CauseLoadAccessFault, csr.CauseLoadPageFault
	}

	var werr *window.Error
	if errors.As(err, &werr) {
		h.raiseFault(werr, accessCause, pageCause, uint64(werr.Addr))
		return
	}

	h.raise(accessCause, 0)
}

func (h *Hart) raise(cause uint64, tval uint64) {
	h.deliver(trap.Trap{Kind: trap.Exception, Cause: cause, Tval: tval})
}

func (h *Hart) deliver(tr trap.Trap) {
	priv, pc := trap.Deliver(h.CSR, h.Priv, h.PC, tr)
	h.Priv = priv
	h.PC = pc
}

// execute dispatches a decoded instruction. pc is the address of the
// instruction following the one being executed (PC+length), used as the
// default next-PC for non-control-flow instructions.
func (h *Hart) execute(inst decode.Instruction, pc addr.Address) error {
	switch {
	case isIntegerOp(inst.Op):
		return h.executeInteger(inst, pc)
	case isMulDivOp(inst.Op):
		return h.executeMulDiv(inst, pc)
	case isAtomicOp(inst.Op):
		return h.executeAtomic(inst, pc)
	case isCSROp(inst.Op):
		return h.executeCSR(inst, pc)
	case isSystemOp(inst.Op):
		return h.executeSystem(inst, pc)
	case isFloatOp(inst.Op):
		return h.executeFloat(inst, pc)
	default:
		return &Exception{Cause: csr.CauseIllegalInstruction, Tval: uint64(inst.Raw)}
	}
}
