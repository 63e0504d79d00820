// Package trap implements exception and interrupt delivery: the
// mstatus/mtvec- (or sstatus/stvec-) mediated trap-entry sequence, M/S
// delegation via medeleg/mideleg, and the MRET/SRET return sequence.
//
// Grounded on the original Rust implementation's hart/mod.rs Hart::exception
// (_examples/original_source), whose medeleg-gated M/S dispatch and
// mstatus-field save/restore sequence this package generalizes to also
// cover interrupts (the original's snapshot only wires exception delivery;
// spec.md's trap module calls for both), and on the teacher's
// interrupt-priority-table shape (smoynes/elsie internal/vm/intr.go's
// Interrupt.Requested, generalized from a single 8-level LC-3 priority scale
// to the six standard M/S interrupt causes).
package trap

import (
	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/log"
)

var logger = log.DefaultLogger()

// Kind distinguishes an exception from an interrupt; the two share a cause
// number space but are delivered through medeleg/mideleg respectively.
type Kind uint8

const (
	Exception Kind = iota
	Interrupt
)

// Trap describes a single exception or interrupt to be delivered.
type Trap struct {
	Kind  Kind
	Cause uint64
	Tval  uint64
}

// interruptPriority lists the standard interrupt causes in the order the
// privileged spec requires them to be serviced when more than one is
// simultaneously pending: machine external, software, timer, then the
// supervisor equivalents.
var interruptPriority = []uint64{
	csr.InterruptMachineExternal,
	csr.InterruptMachineSoftware,
	csr.InterruptMachineTimer,
	csr.InterruptSupervisorExternal,
	csr.InterruptSupervisorSoftware,
	csr.InterruptSupervisorTimer,
}

// Pending selects the highest-priority interrupt that is both pending
// (mip) and enabled (mie), and for which the current privilege level and
// the global interrupt-enable bit at the interrupt's target mode permit
// delivery right now. It returns false if no interrupt should be taken.
func Pending(bank *csr.Bank, priv csr.Privilege) (Trap, bool) {
	pending := bank.MIP.Load() & bank.MIE

	for _, cause := range interruptPriority {
		bit := uint64(1) << cause
		if pending&bit == 0 {
			continue
		}

		delegated := bank.MIDeleg&bit != 0

		var enabled bool

		switch {
		case !delegated:
			enabled = priv != csr.Machine || bank.MStatus.MIE
		case priv == csr.Machine:
			enabled = false // delegated interrupts never preempt M-mode
		case priv == csr.Supervisor:
			enabled = bank.MStatus.SIE
		default:
			enabled = true // User mode: always taken once pending+enabled
		}

		if enabled {
			return Trap{Kind: Interrupt, Cause: cause}, true
		}
	}

	return Trap{}, false
}

// Deliver performs the trap-entry sequence: it decides (via medeleg/
// mideleg) whether the trap targets S-mode or M-mode, saves the trapping
// PC and mstatus bits, and returns the new privilege level and the PC to
// resume execution at.
func Deliver(bank *csr.Bank, curPriv csr.Privilege, pc addr.Address, tr Trap) (csr.Privilege, addr.Address) {
	isInterrupt := tr.Kind == Interrupt

	delegated := false
	if curPriv != csr.Machine {
		if isInterrupt {
			delegated = bank.MIDeleg&(1<<tr.Cause) != 0
		} else {
			delegated = bank.MEDeleg&(1<<tr.Cause) != 0
		}
	}

	if delegated {
		bank.SCause = encodeCause(tr.Cause, isInterrupt)
		bank.SEPC = pc
		bank.STval = tr.Tval
		bank.MStatus.SPIE = bank.MStatus.SIE
		bank.MStatus.SIE = false
		bank.MStatus.SPP = curPriv

		logger.Debug("trap: delegated to S-mode", "hart", bank.HartID, "cause", tr.Cause,
			"interrupt", isInterrupt, "pc", pc, "from", curPriv)

		return csr.Supervisor, bank.STVec.Target(tr.Cause, isInterrupt)
	}

	bank.MCause = encodeCause(tr.Cause, isInterrupt)
	bank.MEPC = pc
	bank.MTval = tr.Tval
	bank.MStatus.MPIE = bank.MStatus.MIE
	bank.MStatus.MIE = false
	bank.MStatus.MPP = curPriv

	logger.Debug("trap: delivered to M-mode", "hart", bank.HartID, "cause", tr.Cause,
		"interrupt", isInterrupt, "pc", pc, "from", curPriv)

	return csr.Machine, bank.MTVec.Target(tr.Cause, isInterrupt)
}

// encodeCause sets the interrupt bit (the MSB of the cause register) for
// interrupts, per mcause/scause's encoding.
func encodeCause(cause uint64, isInterrupt bool) uint64 {
	if isInterrupt {
		return cause | (1 << 63)
	}

	return cause
}

// MRet performs the MRET return sequence, restoring the privilege level
// active before the trap and the interrupt-enable bit stack.
func MRet(bank *csr.Bank) (csr.Privilege, addr.Address) {
	priv := bank.MStatus.MPP
	pc := bank.MEPC

	bank.MStatus.MIE = bank.MStatus.MPIE
	bank.MStatus.MPIE = true
	bank.MStatus.MPP = csr.User

	if priv != csr.Machine {
		bank.MStatus.MPRV = false
	}

	return priv, pc
}

// SRet performs the SRET return sequence.
func SRet(bank *csr.Bank) (csr.Privilege, addr.Address) {
	priv := bank.MStatus.SPP
	pc := bank.SEPC

	bank.MStatus.SIE = bank.MStatus.SPIE
	bank.MStatus.SPIE = true
	bank.MStatus.SPP = csr.User

	if priv != csr.Machine {
		bank.MStatus.MPRV = false
	}

	return priv, pc
}
