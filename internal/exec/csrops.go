package exec

import (
	"errors"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/decode"
	"github.com/smoynes/rv64/internal/trap"
)

// executeCSR handles the Zicsr extension. Grounded on the original
// implementation's execute/rv64zicsr.rs (_examples/original_source), whose
// write/set/clear-with-a-need-to-read-flag trio maps directly onto
// csr.Bank's Write/SetBits/ClearBits.
func (h *Hart) executeCSR(inst decode.Instruction, pc addr.Address) error {
	var (
		old uint64
		err error
	)

	switch inst.Op {
	case decode.CSRRW:
		old, err = h.CSR.Write(inst.Csr, h.Priv, uint64(h.Int.Get(inst.Rs1)))
	case decode.CSRRS:
		old, err = h.CSR.SetBits(inst.Csr, h.Priv, uint64(h.Int.Get(inst.Rs1)))
	case decode.CSRRC:
		old, err = h.CSR.ClearBits(inst.Csr, h.Priv, uint64(h.Int.Get(inst.Rs1)))
	case decode.CSRRWI:
		old, err = h.CSR.Write(inst.Csr, h.Priv, uint64(inst.Uimm))
	case decode.CSRRSI:
		old, err = h.CSR.SetBits(inst.Csr, h.Priv, uint64(inst.Uimm))
	case decode.CSRRCI:
		old, err = h.CSR.ClearBits(inst.Csr, h.Priv, uint64(inst.Uimm))
	}

	if err != nil {
		var illegal *csr.ErrIllegal
		if errors.As(err, &illegal) {
			return &Exception{Cause: csr.CauseIllegalInstruction, Tval: uint64(inst.Raw)}
		}

		return err
	}

	h.Int.Set(inst.Rd, int64(old))
	h.PC = pc

	return nil
}

// executeSystem handles ECALL, EBREAK, MRET, SRET and WFI. Grounded on the
// original implementation's hart/mod.rs Hart::step privileged-instruction
// dispatch (_examples/original_source).
func (h *Hart) executeSystem(inst decode.Instruction, pc addr.Address) error {
	switch inst.Op {
	case decode.ECALL:
		cause := uint64(csr.CauseEcallUMode)

		switch h.Priv {
		case csr.Supervisor:
			cause = csr.CauseEcallSMode
		case csr.Machine:
			cause = csr.CauseEcallMMode
		}

		return &Exception{Cause: cause}
	case decode.EBREAK:
		return &Exception{Cause: csr.CauseBreakpoint, Tval: uint64(h.PC)}
	case decode.MRET:
		if h.Priv != csr.Machine {
			return &Exception{Cause: csr.CauseIllegalInstruction, Tval: uint64(inst.Raw)}
		}

		priv, target := trap.MRet(h.CSR)
		h.Priv = priv
		h.PC = target

		return nil
	case decode.SRET:
		if h.Priv == csr.User || (h.Priv == csr.Supervisor && h.CSR.MStatus.TSR) {
			return &Exception{Cause: csr.CauseIllegalInstruction, Tval: uint64(inst.Raw)}
		}

		priv, target := trap.SRet(h.CSR)
		h.Priv = priv
		h.PC = target

		return nil
	case decode.WFI:
		if h.Priv == csr.Supervisor && h.CSR.MStatus.TW {
			return &Exception{Cause: csr.CauseIllegalInstruction, Tval: uint64(inst.Raw)}
		}

		h.PC = pc

		if h.CSR.MIP.Load()&h.CSR.MIE == 0 {
			return ErrWaitForInterrupt
		}

		return nil
	}

	h.PC = pc

	return nil
}
