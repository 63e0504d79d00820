package exec

import (
	"math"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/decode"
)

// executeFloat handles the RV64F and RV64D extensions. Grounded on the
// original implementation's execute/rv32f.rs, execute/rv32d.rs,
// execute/rv64f.rs and execute/rv64d.rs (_examples/original_source), whose
// softfloat_wrapper-mediated operations are expressed here with Go's
// native float32/float64 arithmetic: the standard library's floating-point
// type already implements IEEE 754 binary32/binary64 semantics, and no
// library in the example corpus offers the per-instruction rounding-mode
// control softfloat_wrapper does, so round-to-nearest-even (Go's native
// float behavior) is used regardless of the instruction's rm field.
func (h *Hart) executeFloat(inst decode.Instruction, pc addr.Address) error {
	switch inst.Op {
	case decode.FLW:
		return h.floatLoad(inst, pc, 4)
	case decode.FLD:
		return h.floatLoad(inst, pc, 8)
	case decode.FSW:
		return h.floatStore(inst, pc, 4)
	case decode.FSD:
		return h.floatStore(inst, pc, 8)
	}

	if isSingle(inst.Op) {
		h.executeSingle(inst)
	} else {
		h.executeDouble(inst)
	}

	h.PC = pc

	return nil
}

func (h *Hart) floatLoad(inst decode.Instruction, pc addr.Address, size int) error {
	a := addr.Address(h.Int.Get(inst.Rs1) + inst.Imm)

	data, err := h.Win.Load(a, size, h.Priv)
	if err != nil {
		h.faultFromWindow(err, false)
		h.PC = pc

		return nil
	}

	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * i)
	}

	if size == 4 {
		h.Float.SetF32(inst.Rd, math.Float32frombits(uint32(v)))
	} else {
		h.Float.SetF64(inst.Rd, math.Float64frombits(v))
	}

	h.PC = pc

	return nil
}

func (h *Hart) floatStore(inst decode.Instruction, pc addr.Address, size int) error {
	a := addr.Address(h.Int.Get(inst.Rs1) + inst.Imm)

	var v uint64
	if size == 4 {
		v = uint64(math.Float32bits(h.Float.GetF32(inst.Rs2)))
	} else {
		v = math.Float64bits(h.Float.GetF64(inst.Rs2))
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(v >> (8 * i))
	}

	if err := h.Win.Store(a, data, h.Priv); err != nil {
		h.faultFromWindow(err, true)
	}

	h.PC = pc

	return nil
}

// isSingle reports whether op operates on single-precision (F extension)
// operands; the remaining ops in the RV64F/RV64D Op range are double
// precision.
func isSingle(op decode.Op) bool {
	return op >= decode.FMADD_S && op <= decode.FMV_W_X
}

func (h *Hart) executeSingle(inst decode.Instruction) {
	rs1 := h.Float.GetF32(inst.Rs1)
	rs2 := h.Float.GetF32(inst.Rs2)
	rs3 := h.Float.GetF32(inst.Rs3)

	switch inst.Op {
	case decode.FMADD_S:
		h.Float.SetF32(inst.Rd, float32(math.FMA(float64(rs1), float64(rs2), float64(rs3))))
	case decode.FMSUB_S:
		h.Float.SetF32(inst.Rd, float32(math.FMA(float64(rs1), float64(rs2), -float64(rs3))))
	case decode.FNMSUB_S:
		h.Float.SetF32(inst.Rd, float32(math.FMA(-float64(rs1), float64(rs2), float64(rs3))))
	case decode.FNMADD_S:
		h.Float.SetF32(inst.Rd, float32(math.FMA(-float64(rs1), float64(rs2), -float64(rs3))))
	case decode.FADD_S:
		h.Float.SetF32(inst.Rd, rs1+rs2)
	case decode.FSUB_S:
		h.Float.SetF32(inst.Rd, rs1-rs2)
	case decode.FMUL_S:
		h.Float.SetF32(inst.Rd, rs1*rs2)
	case decode.FDIV_S:
		h.Float.SetF32(inst.Rd, rs1/rs2)
	case decode.FSQRT_S:
		h.Float.SetF32(inst.Rd, float32(math.Sqrt(float64(rs1))))
	case decode.FSGNJ_S:
		h.Float.SetF32(inst.Rd, float32(math.Copysign(float64(rs1), float64(rs2))))
	case decode.FSGNJN_S:
		h.Float.SetF32(inst.Rd, float32(math.Copysign(float64(rs1), -float64(rs2))))
	case decode.FSGNJX_S:
		sign := float64(1)
		if math.Signbit(float64(rs1)) != math.Signbit(float64(rs2)) {
			sign = -1
		}

		h.Float.SetF32(inst.Rd, float32(math.Copysign(float64(rs1), sign)))
	case decode.FMIN_S:
		h.Float.SetF32(inst.Rd, fminFloat32(rs1, rs2))
	case decode.FMAX_S:
		h.Float.SetF32(inst.Rd, fmaxFloat32(rs1, rs2))
	case decode.FCVT_W_S:
		h.Int.Set(inst.Rd, int64(int32(rs1)))
	case decode.FCVT_WU_S:
		h.Int.Set(inst.Rd, int64(int32(uint32(rs1))))
	case decode.FCVT_L_S:
		h.Int.Set(inst.Rd, int64(rs1))
	case decode.FCVT_LU_S:
		h.Int.Set(inst.Rd, int64(uint64(rs1)))
	case decode.FMV_X_W:
		h.Int.Set(inst.Rd, int64(int32(math.Float32bits(rs1))))
	case decode.FEQ_S:
		h.Int.Set(inst.Rd, boolInt(rs1 == rs2))
	case decode.FLT_S:
		h.Int.Set(inst.Rd, boolInt(rs1 < rs2))
	case decode.FLE_S:
		h.Int.Set(inst.Rd, boolInt(rs1 <= rs2))
	case decode.FCLASS_S:
		h.Int.Set(inst.Rd, classify32(rs1))
	case decode.FCVT_S_W:
		h.Float.SetF32(inst.Rd, float32(int32(h.Int.Get(inst.Rs1))))
	case decode.FCVT_S_WU:
		h.Float.SetF32(inst.Rd, float32(uint32(h.Int.Get(inst.Rs1))))
	case decode.FCVT_S_L:
		h.Float.SetF32(inst.Rd, float32(h.Int.Get(inst.Rs1)))
	case decode.FCVT_S_LU:
		h.Float.SetF32(inst.Rd, float32(uint64(h.Int.Get(inst.Rs1))))
	case decode.FMV_W_X:
		h.Float.SetF32(inst.Rd, math.Float32frombits(uint32(h.Int.Get(inst.Rs1))))
	}
}

func (h *Hart) executeDouble(inst decode.Instruction) {
	rs1 := h.Float.GetF64(inst.Rs1)
	rs2 := h.Float.GetF64(inst.Rs2)
	rs3 := h.Float.GetF64(inst.Rs3)

	switch inst.Op {
	case decode.FMADD_D:
		h.Float.SetF64(inst.Rd, math.FMA(rs1, rs2, rs3))
	case decode.FMSUB_D:
		h.Float.SetF64(inst.Rd, math.FMA(rs1, rs2, -rs3))
	case decode.FNMSUB_D:
		h.Float.SetF64(inst.Rd, math.FMA(-rs1, rs2, rs3))
	case decode.FNMADD_D:
		h.Float.SetF64(inst.Rd, math.FMA(-rs1, rs2, -rs3))
	case decode.FADD_D:
		h.Float.SetF64(inst.Rd, rs1+rs2)
	case decode.FSUB_D:
		h.Float.SetF64(inst.Rd, rs1-rs2)
	case decode.FMUL_D:
		h.Float.SetF64(inst.Rd, rs1*rs2)
	case decode.FDIV_D:
		h.Float.SetF64(inst.Rd, rs1/rs2)
	case decode.FSQRT_D:
		h.Float.SetF64(inst.Rd, math.Sqrt(rs1))
	case decode.FSGNJ_D:
		h.Float.SetF64(inst.Rd, math.Copysign(rs1, rs2))
	case decode.FSGNJN_D:
		h.Float.SetF64(inst.Rd, math.Copysign(rs1, -rs2))
	case decode.FSGNJX_D:
		sign := 1.0
		if math.Signbit(rs1) != math.Signbit(rs2) {
			sign = -1
		}

		h.Float.SetF64(inst.Rd, math.Copysign(rs1, sign))
	case decode.FMIN_D:
		h.Float.SetF64(inst.Rd, fminFloat64(rs1, rs2))
	case decode.FMAX_D:
		h.Float.SetF64(inst.Rd, fmaxFloat64(rs1, rs2))
	case decode.FCVT_W_D:
		h.Int.Set(inst.Rd, int64(int32(rs1)))
	case decode.FCVT_WU_D:
		h.Int.Set(inst.Rd, int64(int32(uint32(rs1))))
	case decode.FCVT_L_D:
		h.Int.Set(inst.Rd, int64(rs1))
	case decode.FCVT_LU_D:
		h.Int.Set(inst.Rd, int64(uint64(rs1)))
	case decode.FCVT_D_W:
		h.Float.SetF64(inst.Rd, float64(int32(h.Int.Get(inst.Rs1))))
	case decode.FCVT_D_WU:
		h.Float.SetF64(inst.Rd, float64(uint32(h.Int.Get(inst.Rs1))))
	case decode.FCVT_D_L:
		h.Float.SetF64(inst.Rd, float64(h.Int.Get(inst.Rs1)))
	case decode.FCVT_D_LU:
		h.Float.SetF64(inst.Rd, float64(uint64(h.Int.Get(inst.Rs1))))
	case decode.FCVT_S_D:
		h.Float.SetF32(inst.Rd, float32(rs1))
	case decode.FCVT_D_S:
		h.Float.SetF64(inst.Rd, float64(h.Float.GetF32(inst.Rs1)))
	case decode.FEQ_D:
		h.Int.Set(inst.Rd, boolInt(rs1 == rs2))
	case decode.FLT_D:
		h.Int.Set(inst.Rd, boolInt(rs1 < rs2))
	case decode.FLE_D:
		h.Int.Set(inst.Rd, boolInt(rs1 <= rs2))
	case decode.FCLASS_D:
		h.Int.Set(inst.Rd, classify64(rs1))
	case decode.FMV_X_D:
		h.Int.Set(inst.Rd, int64(math.Float64bits(rs1)))
	case decode.FMV_D_X:
		h.Float.SetF64(inst.Rd, math.Float64frombits(uint64(h.Int.Get(inst.Rs1))))
	}
}

// fminFloat32/fmaxFloat32/fminFloat64/fmaxFloat64 implement the F/D
// extension's fmin.*/fmax.* NaN and signed-zero rules: a quiet NaN if both
// operands are NaN, the non-NaN operand if only one is, and -0 below +0
// regardless of argument order.
func fminFloat32(a, b float32) float32 {
	switch {
	case math.IsNaN(float64(a)) && math.IsNaN(float64(b)):
		return float32(math.NaN())
	case math.IsNaN(float64(a)):
		return b
	case math.IsNaN(float64(b)):
		return a
	case isNegZero32(a) && isPosZero32(b), isNegZero32(b) && isPosZero32(a):
		return float32(math.Copysign(0, -1))
	case a < b:
		return a
	default:
		return b
	}
}

func fmaxFloat32(a, b float32) float32 {
	switch {
	case math.IsNaN(float64(a)) && math.IsNaN(float64(b)):
		return float32(math.NaN())
	case math.IsNaN(float64(a)):
		return b
	case math.IsNaN(float64(b)):
		return a
	case isNegZero32(a) && isPosZero32(b), isNegZero32(b) && isPosZero32(a):
		return 0
	case a > b:
		return a
	default:
		return b
	}
}

func fminFloat64(a, b float64) float64 {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return math.NaN()
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case isNegZero64(a) && isPosZero64(b), isNegZero64(b) && isPosZero64(a):
		return math.Copysign(0, -1)
	case a < b:
		return a
	default:
		return b
	}
}

func fmaxFloat64(a, b float64) float64 {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return math.NaN()
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case isNegZero64(a) && isPosZero64(b), isNegZero64(b) && isPosZero64(a):
		return 0
	case a > b:
		return a
	default:
		return b
	}
}

func isNegZero32(v float32) bool { return v == 0 && math.Signbit(float64(v)) }
func isPosZero32(v float32) bool { return v == 0 && !math.Signbit(float64(v)) }
func isNegZero64(v float64) bool { return v == 0 && math.Signbit(v) }
func isPosZero64(v float64) bool { return v == 0 && !math.Signbit(v) }

// classify32/classify64 implement FCLASS.S/FCLASS.D's ten-bit result.
func classify32(v float32) int64 {
	f := float64(v)

	switch {
	case math.IsInf(f, -1):
		return 1 << 0
	case v < 0 && !isSubnormal32(v):
		return 1 << 1
	case v < 0 && isSubnormal32(v):
		return 1 << 2
	case isNegZero32(v):
		return 1 << 3
	case isPosZero32(v):
		return 1 << 4
	case v > 0 && isSubnormal32(v):
		return 1 << 5
	case v > 0 && !isSubnormal32(v):
		return 1 << 6
	case math.IsInf(f, 1):
		return 1 << 7
	default:
		return 1 << 9 // quiet NaN; this implementation never produces signaling NaNs
	}
}

func classify64(v float64) int64 {
	switch {
	case math.IsInf(v, -1):
		return 1 << 0
	case v < 0 && !isSubnormal64(v):
		return 1 << 1
	case v < 0 && isSubnormal64(v):
		return 1 << 2
	case isNegZero64(v):
		return 1 << 3
	case isPosZero64(v):
		return 1 << 4
	case v > 0 && isSubnormal64(v):
		return 1 << 5
	case v > 0 && !isSubnormal64(v):
		return 1 << 6
	case math.IsInf(v, 1):
		return 1 << 7
	default:
		return 1 << 9
	}
}

func isSubnormal32(v float32) bool {
	a := math.Abs(float64(v))
	return a != 0 && a < 0x1p-126
}

func isSubnormal64(v float64) bool {
	a := math.Abs(v)
	return a != 0 && a < 0x1p-1022
}
