package exec

import (
	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/decode"
)

// executeInteger handles the RV64I base set. Grounded on the original
// implementation's execute/rv32i.rs and execute/rv64i.rs
// (_examples/original_source), generalized into one function covering both
// the 32-bit "W" suffixed variants and the native 64-bit forms instead of
// two parallel per-width modules.
func (h *Hart) executeInteger(inst decode.Instruction, pc addr.Address) error {
	rs1 := h.Int.Get(inst.Rs1)
	rs2 := h.Int.Get(inst.Rs2)

	switch inst.Op {
	case decode.LUI:
		h.Int.Set(inst.Rd, inst.Imm)
	case decode.AUIPC:
		h.Int.Set(inst.Rd, int64(h.PC)+inst.Imm)
	case decode.JAL:
		h.Int.Set(inst.Rd, int64(pc))
		h.PC = h.PC.Add(inst.Imm)
		return nil
	case decode.JALR:
		target := addr.Address((rs1 + inst.Imm) &^ 1)
		h.Int.Set(inst.Rd, int64(pc))
		h.PC = target
		return nil
	case decode.BEQ, decode.BNE, decode.BLT, decode.BGE, decode.BLTU, decode.BGEU:
		if branchTaken(inst.Op, rs1, rs2) {
			h.PC = h.PC.Add(inst.Imm)
		} else {
			h.PC = pc
		}

		return nil
	case decode.LB, decode.LH, decode.LW, decode.LD, decode.LBU, decode.LHU, decode.LWU:
		if err := h.load(inst, rs1); err != nil {
			return err
		}
	case decode.SB, decode.SH, decode.SW, decode.SD:
		if err := h.store(inst, rs1, rs2); err != nil {
			return err
		}
	case decode.ADDI:
		h.Int.Set(inst.Rd, rs1+inst.Imm)
	case decode.SLTI:
		h.Int.Set(inst.Rd, boolInt(rs1 < inst.Imm))
	case decode.SLTIU:
		h.Int.Set(inst.Rd, boolInt(uint64(rs1) < uint64(inst.Imm)))
	case decode.XORI:
		h.Int.Set(inst.Rd, rs1^inst.Imm)
	case decode.ORI:
		h.Int.Set(inst.Rd, rs1|inst.Imm)
	case decode.ANDI:
		h.Int.Set(inst.Rd, rs1&inst.Imm)
	case decode.SLLI:
		h.Int.Set(inst.Rd, rs1<<(inst.Shamt&0x3f))
	case decode.SRLI:
		h.Int.Set(inst.Rd, int64(uint64(rs1)>>(inst.Shamt&0x3f)))
	case decode.SRAI:
		h.Int.Set(inst.Rd, rs1>>(inst.Shamt&0x3f))
	case decode.ADD:
		h.Int.Set(inst.Rd, rs1+rs2)
	case decode.SUB:
		h.Int.Set(inst.Rd, rs1-rs2)
	case decode.SLL:
		h.Int.Set(inst.Rd, rs1<<(uint64(rs2)&0x3f))
	case decode.SLT:
		h.Int.Set(inst.Rd, boolInt(rs1 < rs2))
	case decode.SLTU:
		h.Int.Set(inst.Rd, boolInt(uint64(rs1) < uint64(rs2)))
	case decode.XOR:
		h.Int.Set(inst.Rd, rs1^rs2)
	case decode.SRL:
		h.Int.Set(inst.Rd, int64(uint64(rs1)>>(uint64(rs2)&0x3f)))
	case decode.SRA:
		h.Int.Set(inst.Rd, rs1>>(uint64(rs2)&0x3f))
	case decode.OR:
		h.Int.Set(inst.Rd, rs1|rs2)
	case decode.AND:
		h.Int.Set(inst.Rd, rs1&rs2)
	case decode.FENCE:
		// Single hart per window ordering is already sequential; nothing to do.
	case decode.ADDIW:
		h.Int.Set(inst.Rd, int64(int32(rs1+inst.Imm)))
	case decode.SLLIW:
		h.Int.Set(inst.Rd, int64(int32(uint32(rs1)<<(inst.Shamt&0x1f))))
	case decode.SRLIW:
		h.Int.Set(inst.Rd, int64(int32(uint32(rs1)>>(inst.Shamt&0x1f))))
	case decode.SRAIW:
		h.Int.Set(inst.Rd, int64(int32(rs1)>>(inst.Shamt&0x1f)))
	case decode.ADDW:
		h.Int.Set(inst.Rd, int64(int32(rs1+rs2)))
	case decode.SUBW:
		h.Int.Set(inst.Rd, int64(int32(rs1-rs2)))
	case decode.SLLW:
		h.Int.Set(inst.Rd, int64(int32(uint32(rs1)<<(uint32(rs2)&0x1f))))
	case decode.SRLW:
		h.Int.Set(inst.Rd, int64(int32(uint32(rs1)>>(uint32(rs2)&0x1f))))
	case decode.SRAW:
		h.Int.Set(inst.Rd, int64(int32(rs1)>>(uint32(rs2)&0x1f)))
	default:
		return &Exception{Cause: csr.CauseIllegalInstruction, Tval: uint64(inst.Raw)}
	}

	h.PC = pc

	return nil
}

func branchTaken(op decode.Op, a, b int64) bool {
	switch op {
	case decode.BEQ:
		return a == b
	case decode.BNE:
		return a != b
	case decode.BLT:
		return a < b
	case decode.BGE:
		return a >= b
	case decode.BLTU:
		return uint64(a) < uint64(b)
	case decode.BGEU:
		return uint64(a) >= uint64(b)
	}

	return false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

func (h *Hart) load(inst decode.Instruction, rs1 int64) error {
	a := addr.Address(rs1 + inst.Imm)

	var size int

	switch inst.Op {
	case decode.LB, decode.LBU:
		size = 1
	case decode.LH, decode.LHU:
		size = 2
	case decode.LW, decode.LWU:
		size = 4
	case decode.LD:
		size = 8
	}

	data, err := h.Win.Load(a, size, h.Priv)
	if err != nil {
		h.faultFromWindow(err, false)
		return nil
	}

	h.Int.Set(inst.Rd, signOrZeroExtend(inst.Op, data))

	return nil
}

func signOrZeroExtend(op decode.Op, data []byte) int64 {
	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * i)
	}

	switch op {
	case decode.LB:
		return addr.SignExtend(v, 8)
	case decode.LH:
		return addr.SignExtend(v, 16)
	case decode.LW:
		return addr.SignExtend(v, 32)
	case decode.LBU:
		return int64(addr.ZeroExtend(v, 8))
	case decode.LHU:
		return int64(addr.ZeroExtend(v, 16))
	case decode.LWU:
		return int64(addr.ZeroExtend(v, 32))
	default: // LD
		return int64(v)
	}
}

func (h *Hart) store(inst decode.Instruction, rs1, rs2 int64) error {
	a := addr.Address(rs1 + inst.Imm)

	var size int

	switch inst.Op {
	case decode.SB:
		size = 1
	case decode.SH:
		size = 2
	case decode.SW:
		size = 4
	case decode.SD:
		size = 8
	}

	data := make([]byte, size)
	u := uint64(rs2)

	for i := range data {
		data[i] = byte(u >> (8 * i))
	}

	if err := h.Win.Store(a, data, h.Priv); err != nil {
		h.faultFromWindow(err, true)
	}

	return nil
}
