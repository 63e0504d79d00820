package decode

import "testing"

func TestDecode16ExpandsToStandardOps(t *testing.T) {
	tcs := []struct {
		name string
		raw  uint16
		op   Op
		rd   int
		rs1  int
		imm  int64
	}{
		{"C.NOP", 0x0001, ADDI, 0, 0, 0},
		{"C.LI", 0x4095, ADDI, 1, 0, 5},
		{"C.ADDI4SPN", 0x0020, ADDI, 8, 2, 8},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			inst := Decode16(tc.raw)

			if inst.Length != 2 {
				t.Errorf("length: want 2, got %d", inst.Length)
			}

			if inst.Op != tc.op {
				t.Fatalf("op: want %v, got %v", tc.op, inst.Op)
			}

			if inst.Rd != tc.rd {
				t.Errorf("rd: want %d, got %d", tc.rd, inst.Rd)
			}

			if inst.Imm != tc.imm {
				t.Errorf("imm: want %d, got %d", tc.imm, inst.Imm)
			}
		})
	}
}

func TestDecode16UndefinedReservedRd(t *testing.T) {
	// C.ADDIW with rd=x0 is reserved.
	inst := Decode16(0x2001)

	if inst.Op != Undefined {
		t.Errorf("expected Undefined for reserved C.ADDIW rd=x0 encoding, got %v", inst.Op)
	}
}

func TestDecode16UndefinedReservedADDI4SPNZeroImm(t *testing.T) {
	// C.ADDI4SPN with nzuimm==0 is reserved; all other quadrant-00 bits
	// zero (including funct3==000) decodes to this encoding.
	inst := Decode16(0x0000)

	if inst.Op != Undefined {
		t.Errorf("expected Undefined for reserved C.ADDI4SPN nzuimm=0 encoding, got %v", inst.Op)
	}
}

func TestDecode16CJumpTargetIncludesBit5(t *testing.T) {
	// C.J with an offset of 0x20 (only bit 5 set). Before the cjImm fix
	// this bit was dropped and the decoded offset came out as 0.
	inst := Decode16(0xA005)

	if inst.Op != JAL {
		t.Fatalf("op: want JAL, got %v", inst.Op)
	}

	if inst.Imm != 0x20 {
		t.Errorf("imm: want 0x20, got %#x", inst.Imm)
	}
}

func TestCregMapsToX8ThroughX15(t *testing.T) {
	for i := uint16(0); i < 8; i++ {
		if got := creg(i); got != int(i)+8 {
			t.Errorf("creg(%d): want %d, got %d", i, i+8, got)
		}
	}
}
