package exec

import (
	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/decode"
)

// executeAtomic handles the RV64A extension: LR/SC reservations and the AMO
// read-modify-write operations. Grounded on the original implementation's
// execute/rv32a.rs and execute/rv64a.rs (_examples/original_source), whose
// per-width free functions are collapsed into one switch parameterized by
// access size (4 for .W, 8 for .D).
func (h *Hart) executeAtomic(inst decode.Instruction, pc addr.Address) error {
	rs1 := h.Int.Get(inst.Rs1)
	rs2 := h.Int.Get(inst.Rs2)
	a := addr.Address(rs1)

	size := 8
	if isWordAtomic(inst.Op) {
		size = 4
	}

	if !a.AlignedTo(uint64(size)) {
		return &Exception{Cause: csr.CauseLoadAddressMisaligned, Tval: uint64(a)}
	}

	switch inst.Op {
	case decode.LR_W, decode.LR_D:
		data, err := h.Win.LoadReserved(h.ID, a, size, h.Priv)
		if err != nil {
			h.faultFromWindow(err, false)
			h.PC = pc

			return nil
		}

		h.Int.Set(inst.Rd, signExtendSize(data, size))
	case decode.SC_W, decode.SC_D:
		data := encodeSize(uint64(rs2), size)

		ok, err := h.Win.StoreConditional(h.ID, a, size, data, h.Priv)
		if err != nil {
			h.faultFromWindow(err, true)
			h.PC = pc

			return nil
		}

		if ok {
			h.Int.Set(inst.Rd, 0)
		} else {
			h.Int.Set(inst.Rd, 1)
		}
	default:
		old, err := h.Win.AtomicRMW(a, size, h.Priv, amoFn(inst.Op, size, uint64(rs2)))
		if err != nil {
			h.faultFromWindow(err, true)
			h.PC = pc

			return nil
		}

		h.Int.Set(inst.Rd, addr.SignExtend(old, uint(size*8)))
	}

	h.PC = pc

	return nil
}

func isWordAtomic(op decode.Op) bool {
	switch op {
	case decode.LR_W, decode.SC_W, decode.AMOSWAP_W, decode.AMOADD_W, decode.AMOXOR_W,
		decode.AMOAND_W, decode.AMOOR_W, decode.AMOMIN_W, decode.AMOMAX_W, decode.AMOMINU_W, decode.AMOMAXU_W:
		return true
	}

	return false
}

func signExtendSize(data []byte, size int) int64 {
	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * i)
	}

	return addr.SignExtend(v, uint(size*8))
}

func encodeSize(v uint64, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(v >> (8 * i))
	}

	return data
}

// amoFn returns the read-modify-write function for an AMO opcode, applied
// to the operand rs2 truncated (for .W) or kept full-width (for .D).
func amoFn(op decode.Op, size int, rs2 uint64) func(old uint64) uint64 {
	w32 := size == 4

	apply := func(fn func(old, rs int64) int64) func(old uint64) uint64 {
		return func(old uint64) uint64 {
			if w32 {
				result := fn(int64(int32(old)), int64(int32(rs2)))
				return uint64(uint32(result))
			}

			return uint64(fn(int64(old), int64(rs2)))
		}
	}

	applyU := func(fn func(old, rs uint64) uint64) func(old uint64) uint64 {
		return func(old uint64) uint64 {
			if w32 {
				result := fn(uint64(uint32(old)), uint64(uint32(rs2)))
				return uint64(uint32(result))
			}

			return fn(old, rs2)
		}
	}

	switch op {
	case decode.AMOSWAP_W, decode.AMOSWAP_D:
		return apply(func(_, rs int64) int64 { return rs })
	case decode.AMOADD_W, decode.AMOADD_D:
		return apply(func(old, rs int64) int64 { return old + rs })
	case decode.AMOXOR_W, decode.AMOXOR_D:
		return apply(func(old, rs int64) int64 { return old ^ rs })
	case decode.AMOAND_W, decode.AMOAND_D:
		return apply(func(old, rs int64) int64 { return old & rs })
	case decode.AMOOR_W, decode.AMOOR_D:
		return apply(func(old, rs int64) int64 { return old | rs })
	case decode.AMOMIN_W, decode.AMOMIN_D:
		return apply(func(old, rs int64) int64 {
			if old < rs {
				return old
			}
			return rs
		})
	case decode.AMOMAX_W, decode.AMOMAX_D:
		return apply(func(old, rs int64) int64 {
			if old > rs {
				return old
			}
			return rs
		})
	case decode.AMOMINU_W, decode.AMOMINU_D:
		return applyU(func(old, rs uint64) uint64 {
			if old < rs {
				return old
			}
			return rs
		})
	case decode.AMOMAXU_W, decode.AMOMAXU_D:
		return applyU(func(old, rs uint64) uint64 {
			if old > rs {
				return old
			}
			return rs
		})
	}

	return func(old uint64) uint64 { return old }
}
