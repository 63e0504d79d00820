package decode

import "github.com/smoynes/rv64/internal/addr"

// creg maps a compressed 3-bit register field to its full x8-x15 register
// number.
func creg(v uint16) int { return int(v&0b111) + 8 }

func ciImm(inst uint16) int64 {
	v := (inst>>2)&0b11111 | (inst>>12&0b1)<<5
	return addr.SignExtend(uint64(v), 6)
}

func ciShamt(inst uint16) uint {
	return uint((inst>>2)&0b11111 | (inst>>12&0b1)<<5)
}

func ciSPDoubleImm(inst uint16) int64 {
	v := (inst>>2)&0b111<<6 | (inst>>5)&0b11<<3 | (inst>>12&0b1)<<5
	return int64(v)
}

func ciSPWordImm(inst uint16) int64 {
	v := (inst>>2)&0b11<<6 | (inst>>4)&0b111<<2 | (inst>>12&0b1)<<5
	return int64(v)
}

func clWordImm(inst uint16) int64 {
	v := (inst>>10)&0b111<<3 | (inst>>6&0b1)<<2 | (inst>>5&0b1)<<6
	return int64(v)
}

func clDoubleImm(inst uint16) int64 {
	v := (inst>>10)&0b111<<3 | (inst>>5)&0b11<<6
	return int64(v)
}

func cbImm(inst uint16) int64 {
	v := (inst>>2&0b1)<<5 | (inst>>3)&0b11<<1 | (inst>>5)&0b11<<6 | (inst>>10)&0b11<<3 | (inst>>12&0b1)<<8
	return addr.SignExtend(uint64(v), 9)
}

func cjImm(inst uint16) int64 {
	v := (inst>>2&0b1)<<5 | (inst>>3)&0b111<<1 | (inst>>6&0b1)<<7 | (inst>>7&0b1)<<6 | (inst>>8&0b1)<<10 |
		(inst>>9)&0b11<<8 | (inst>>11&0b1)<<4 | (inst>>12&0b1)<<11
	return addr.SignExtend(uint64(v), 12)
}

// Decode16 decodes a 2-byte C-extension instruction, expanding it to the
// equivalent standard Op. Grounded on the opcode/funct3 dispatch table in
// the original Rust implementation's decode/compact.rs
// (_examples/original_source), corrected against the standard RVC encoding
// where that source's quadrant-1 C.LI case mis-expanded to ADDIW instead
// of ADDI.
func Decode16(raw uint16) Instruction {
	opcode := raw & 0b11
	funct3 := (raw >> 13) & 0b111

	inst := Instruction{Length: 2, Raw: uint32(raw)}

	switch opcode {
	case 0b00:
		rdp := creg(raw >> 2)
		rs1p := creg(raw >> 7)

		switch funct3 {
		case 0b000: // C.ADDI4SPN
			nzuimm := (raw>>6&0b1)<<2 | (raw>>5&0b1)<<3 | (raw>>11)&0b11<<4 | (raw>>7)&0b1111<<6
			if nzuimm == 0 {
				inst.Op = Undefined
				break
			}

			inst.Op, inst.Rd, inst.Rs1, inst.Imm = ADDI, creg(raw>>2), 2, int64(nzuimm)
		case 0b001: // C.FLD
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = FLD, rdp, rs1p, clDoubleImm(raw)
		case 0b010: // C.LW
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = LW, rdp, rs1p, clWordImm(raw)
		case 0b011: // C.LD
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = LD, rdp, rs1p, clDoubleImm(raw)
		case 0b101: // C.FSD
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = FSD, rs1p, rdp, clDoubleImm(raw)
		case 0b110: // C.SW
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = SW, rs1p, rdp, clWordImm(raw)
		case 0b111: // C.SD
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = SD, rs1p, rdp, clDoubleImm(raw)
		default:
			inst.Op = Undefined
		}
	case 0b01:
		rdRs1 := int((raw >> 7) & 0b11111)

		switch funct3 {
		case 0b000: // C.ADDI (C.NOP when rd==0)
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = ADDI, rdRs1, rdRs1, ciImm(raw)
		case 0b001: // C.ADDIW
			if rdRs1 == 0 {
				inst.Op = Undefined
				break
			}
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = ADDIW, rdRs1, rdRs1, ciImm(raw)
		case 0b010: // C.LI
			if rdRs1 == 0 {
				inst.Op = Undefined
				break
			}
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = ADDI, rdRs1, 0, ciImm(raw)
		case 0b011:
			if rdRs1 == 2 { // C.ADDI16SP
				v := (raw>>6&0b1)<<4 | (raw>>2&0b1)<<5 | (raw>>5&0b1)<<6 | (raw>>3)&0b11<<7 | (raw>>12&0b1)<<9
				imm := addr.SignExtend(uint64(v), 10)

				if imm == 0 {
					inst.Op = Undefined
					break
				}

				inst.Op, inst.Rd, inst.Rs1, inst.Imm = ADDI, 2, 2, imm
			} else { // C.LUI
				imm := ciImm(raw) << 12
				if rdRs1 == 0 || imm == 0 {
					inst.Op = Undefined
					break
				}

				inst.Op, inst.Rd, inst.Imm = LUI, rdRs1, imm
			}
		case 0b100:
			funct2 := (raw >> 10) & 0b11
			rdRs1p := creg(raw >> 7)

			switch funct2 {
			case 0b00: // C.SRLI
				shamt := ciShamt(raw)
				if shamt == 0 {
					inst.Op = Undefined
					break
				}

				inst.Op, inst.Rd, inst.Rs1, inst.Shamt = SRLI, rdRs1p, rdRs1p, shamt
			case 0b01: // C.SRAI
				shamt := ciShamt(raw)
				if shamt == 0 {
					inst.Op = Undefined
					break
				}

				inst.Op, inst.Rd, inst.Rs1, inst.Shamt = SRAI, rdRs1p, rdRs1p, shamt
			case 0b10: // C.ANDI
				inst.Op, inst.Rd, inst.Rs1, inst.Imm = ANDI, rdRs1p, rdRs1p, ciImm(raw)
			case 0b11:
				funct1 := (raw >> 12) & 0b1
				funct2b := (raw >> 5) & 0b11
				rs2p := creg(raw >> 2)

				switch {
				case funct1 == 0 && funct2b == 0b00:
					inst.Op = SUB
				case funct1 == 0 && funct2b == 0b01:
					inst.Op = XOR
				case funct1 == 0 && funct2b == 0b10:
					inst.Op = OR
				case funct1 == 0 && funct2b == 0b11:
					inst.Op = AND
				case funct1 == 1 && funct2b == 0b00:
					inst.Op = SUBW
				case funct1 == 1 && funct2b == 0b01:
					inst.Op = ADDW
				default:
					inst.Op = Undefined
				}

				inst.Rd, inst.Rs1, inst.Rs2 = rdRs1p, rdRs1p, rs2p
			}
		case 0b101: // C.J
			inst.Op, inst.Rd, inst.Imm = JAL, 0, cjImm(raw)
		case 0b110: // C.BEQZ
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = BEQ, creg(raw>>7), 0, cbImm(raw)
		case 0b111: // C.BNEZ
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = BNE, creg(raw>>7), 0, cbImm(raw)
		}
	case 0b10:
		rdRs1 := int((raw >> 7) & 0b11111)

		switch funct3 {
		case 0b000: // C.SLLI
			shamt := ciShamt(raw)
			if shamt == 0 || rdRs1 == 0 {
				inst.Op = Undefined
				break
			}

			inst.Op, inst.Rd, inst.Rs1, inst.Shamt = SLLI, rdRs1, rdRs1, shamt
		case 0b001: // C.FLDSP
			inst.Op, inst.Rd, inst.Rs1, inst.Imm = FLD, rdRs1, 2, ciSPDoubleImm(raw)
		case 0b010: // C.LWSP
			if rdRs1 == 0 {
				inst.Op = Undefined
				break
			}

			inst.Op, inst.Rd, inst.Rs1, inst.Imm = LW, rdRs1, 2, ciSPWordImm(raw)
		case 0b011: // C.LDSP
			if rdRs1 == 0 {
				inst.Op = Undefined
				break
			}

			inst.Op, inst.Rd, inst.Rs1, inst.Imm = LD, rdRs1, 2, ciSPDoubleImm(raw)
		case 0b100:
			funct1 := (raw >> 12) & 0b1
			rs2 := int((raw >> 2) & 0b11111)

			switch {
			case funct1 == 0 && rdRs1 != 0 && rs2 == 0: // C.JR
				inst.Op, inst.Rd, inst.Rs1, inst.Imm = JALR, 0, rdRs1, 0
			case funct1 == 0 && rdRs1 != 0 && rs2 != 0: // C.MV
				inst.Op, inst.Rd, inst.Rs1, inst.Rs2 = ADD, rdRs1, 0, rs2
			case funct1 == 1 && rdRs1 == 0 && rs2 == 0: // C.EBREAK
				inst.Op = EBREAK
			case funct1 == 1 && rdRs1 != 0 && rs2 == 0: // C.JALR
				inst.Op, inst.Rd, inst.Rs1, inst.Imm = JALR, 1, rdRs1, 0
			case funct1 == 1 && rdRs1 != 0 && rs2 != 0: // C.ADD
				inst.Op, inst.Rd, inst.Rs1, inst.Rs2 = ADD, rdRs1, rdRs1, rs2
			default:
				inst.Op = Undefined
			}
		case 0b101: // C.FSDSP
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = FSD, 2, int((raw>>2)&0b11111), ciSPDoubleImm(raw)
		case 0b110: // C.SWSP
			v := (raw>>7)&0b11<<6 | (raw>>9)&0b1111<<2
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = SW, 2, int((raw>>2)&0b11111), int64(v)
		case 0b111: // C.SDSP
			v := (raw>>7)&0b111<<6 | (raw>>10)&0b111<<3
			inst.Op, inst.Rs1, inst.Rs2, inst.Imm = SD, 2, int((raw>>2)&0b11111), int64(v)
		}
	default:
		inst.Op = Undefined
	}

	return inst
}
