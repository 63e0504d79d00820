package exec

import (
	"math/bits"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/decode"
)

// executeMulDiv handles the RV64M extension. Grounded on the original
// implementation's execute/rv32m.rs and execute/rv64m.rs
// (_examples/original_source): division and remainder by zero, and the
// signed division overflow case (MinInt64 / -1), return the values the
// base spec defines rather than trapping, matching mulh/div/rem there.
func (h *Hart) executeMulDiv(inst decode.Instruction, pc addr.Address) error {
	rs1 := h.Int.Get(inst.Rs1)
	rs2 := h.Int.Get(inst.Rs2)

	switch inst.Op {
	case decode.MUL:
		h.Int.Set(inst.Rd, rs1*rs2)
	case decode.MULH:
		h.Int.Set(inst.Rd, mulhSigned(rs1, rs2))
	case decode.MULHSU:
		h.Int.Set(inst.Rd, mulhSU(rs1, rs2))
	case decode.MULHU:
		hi, _ := bits.Mul64(uint64(rs1), uint64(rs2))
		h.Int.Set(inst.Rd, int64(hi))
	case decode.DIV:
		h.Int.Set(inst.Rd, divSigned(rs1, rs2))
	case decode.DIVU:
		if rs2 == 0 {
			h.Int.Set(inst.Rd, -1)
		} else {
			h.Int.Set(inst.Rd, int64(uint64(rs1)/uint64(rs2)))
		}
	case decode.REM:
		h.Int.Set(inst.Rd, remSigned(rs1, rs2))
	case decode.REMU:
		if rs2 == 0 {
			h.Int.Set(inst.Rd, rs1)
		} else {
			h.Int.Set(inst.Rd, int64(uint64(rs1)%uint64(rs2)))
		}
	case decode.MULW:
		h.Int.Set(inst.Rd, int64(int32(rs1)*int32(rs2)))
	case decode.DIVW:
		h.Int.Set(inst.Rd, int64(divSigned32(int32(rs1), int32(rs2))))
	case decode.DIVUW:
		if uint32(rs2) == 0 {
			h.Int.Set(inst.Rd, -1)
		} else {
			h.Int.Set(inst.Rd, int64(int32(uint32(rs1)/uint32(rs2))))
		}
	case decode.REMW:
		h.Int.Set(inst.Rd, int64(remSigned32(int32(rs1), int32(rs2))))
	case decode.REMUW:
		if uint32(rs2) == 0 {
			h.Int.Set(inst.Rd, int64(int32(rs1)))
		} else {
			h.Int.Set(inst.Rd, int64(int32(uint32(rs1)%uint32(rs2))))
		}
	}

	h.PC = pc

	return nil
}

func mulhSigned(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}

	if b < 0 {
		hi -= uint64(a)
	}

	return int64(hi)
}

func mulhSU(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}

	return int64(hi)
}

func divSigned(a, b int64) int64 {
	if b == 0 {
		return -1
	}

	if a == minInt64 && b == -1 {
		return minInt64
	}

	return a / b
}

func remSigned(a, b int64) int64 {
	if b == 0 {
		return a
	}

	if a == minInt64 && b == -1 {
		return 0
	}

	return a % b
}

func divSigned32(a, b int32) int32 {
	if b == 0 {
		return -1
	}

	if a == minInt32 && b == -1 {
		return minInt32
	}

	return a / b
}

func remSigned32(a, b int32) int32 {
	if b == 0 {
		return a
	}

	if a == minInt32 && b == -1 {
		return 0
	}

	return a % b
}

const (
	minInt64 = -1 << 63
	minInt32 = -1 << 31
)
