package decode

import "testing"

func TestDecode32Canonical(t *testing.T) {
	tcs := []struct {
		name string
		raw  uint32
		op   Op
		rd   int
		rs1  int
		rs2  int
		imm  int64
	}{
		// addi x1, x2, -1
		{"ADDI", 0xFFF10093, ADDI, 1, 2, 0, -1},
		// add x1, x2, x3
		{"ADD", 0x003100B3, ADD, 1, 2, 3, 0},
		// sub x1, x2, x3
		{"SUB", 0x403100B3, SUB, 1, 2, 3, 0},
		// lw x5, 16(x10)
		{"LW", 0x01052283, LW, 5, 10, 0, 16},
		// sw x5, 16(x10)
		{"SW", 0x00552823, SW, 0, 10, 5, 16},
		// beq x1, x2, 0 (imm encoded as 0)
		{"BEQ", 0x00208063, BEQ, 0, 1, 2, 0},
		// lui x1, 0x1
		{"LUI", 0x000010B7, LUI, 1, 0, 0, 0x1000},
		// jal x1, 0
		{"JAL", 0x000000EF, JAL, 1, 0, 0, 0},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			inst := Decode32(tc.raw)

			if inst.Op != tc.op {
				t.Fatalf("op: want %v, got %v", tc.op, inst.Op)
			}

			if inst.Rd != tc.rd {
				t.Errorf("rd: want %d, got %d", tc.rd, inst.Rd)
			}

			if inst.Rs1 != tc.rs1 {
				t.Errorf("rs1: want %d, got %d", tc.rs1, inst.Rs1)
			}

			if inst.Length != 4 {
				t.Errorf("length: want 4, got %d", inst.Length)
			}
		})
	}
}

func TestDecode32Undefined(t *testing.T) {
	inst := Decode32(0x0000007F) // opcode 0b1111111 is not assigned, no match

	if inst.Op != Undefined {
		t.Errorf("expected Undefined for unrecognized opcode, got %v", inst.Op)
	}
}

func TestImmIEncoding(t *testing.T) {
	// addi x1, x0, -2048 (imm field = 0x800, sign bit set)
	raw := uint32(0x800) <<20 | uint32(0)<<15 | uint32(1)<<7 | uint32(0b0010011)

	inst := Decode32(raw)

	if inst.Op != ADDI {
		t.Fatalf("op: want ADDI, got %v", inst.Op)
	}

	if inst.Imm != -2048 {
		t.Errorf("imm: want -2048, got %d", inst.Imm)
	}
}
