package exec

import "github.com/smoynes/rv64/internal/decode"

func isIntegerOp(op decode.Op) bool {
	switch op {
	case decode.LUI, decode.AUIPC, decode.JAL, decode.JALR,
		decode.BEQ, decode.BNE, decode.BLT, decode.BGE, decode.BLTU, decode.BGEU,
		decode.LB, decode.LH, decode.LW, decode.LD, decode.LBU, decode.LHU, decode.LWU,
		decode.SB, decode.SH, decode.SW, decode.SD,
		decode.ADDI, decode.SLTI, decode.SLTIU, decode.XORI, decode.ORI, decode.ANDI,
		decode.SLLI, decode.SRLI, decode.SRAI,
		decode.ADD, decode.SUB, decode.SLL, decode.SLT, decode.SLTU, decode.XOR, decode.SRL, decode.SRA, decode.OR, decode.AND,
		decode.FENCE,
		decode.ADDIW, decode.SLLIW, decode.SRLIW, decode.SRAIW,
		decode.ADDW, decode.SUBW, decode.SLLW, decode.SRLW, decode.SRAW:
		return true
	}

	return false
}

func isMulDivOp(op decode.Op) bool {
	switch op {
	case decode.MUL, decode.MULH, decode.MULHSU, decode.MULHU,
		decode.DIV, decode.DIVU, decode.REM, decode.REMU,
		decode.MULW, decode.DIVW, decode.DIVUW, decode.REMW, decode.REMUW:
		return true
	}

	return false
}

func isAtomicOp(op decode.Op) bool {
	switch op {
	case decode.LR_W, decode.SC_W, decode.AMOSWAP_W, decode.AMOADD_W, decode.AMOXOR_W,
		decode.AMOAND_W, decode.AMOOR_W, decode.AMOMIN_W, decode.AMOMAX_W, decode.AMOMINU_W, decode.AMOMAXU_W,
		decode.LR_D, decode.SC_D, decode.AMOSWAP_D, decode.AMOADD_D, decode.AMOXOR_D,
		decode.AMOAND_D, decode.AMOOR_D, decode.AMOMIN_D, decode.AMOMAX_D, decode.AMOMINU_D, decode.AMOMAXU_D:
		return true
	}

	return false
}

func isCSROp(op decode.Op) bool {
	switch op {
	case decode.CSRRW, decode.CSRRS, decode.CSRRC, decode.CSRRWI, decode.CSRRSI, decode.CSRRCI:
		return true
	}

	return false
}

func isSystemOp(op decode.Op) bool {
	switch op {
	case decode.ECALL, decode.EBREAK, decode.MRET, decode.SRET, decode.WFI:
		return true
	}

	return false
}

func isFloatOp(op decode.Op) bool {
	return op >= decode.FLW && op <= decode.FMV_D_X
}
