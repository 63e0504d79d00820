package csr

import (
	"errors"
	"testing"

	"github.com/smoynes/rv64/internal/pmp"
)

func newBank() *Bank {
	return New(0, pmp.New(), &InterruptBits{})
}

func TestReadWriteMscratchRoundTrip(t *testing.T) {
	b := newBank()

	old, err := b.Write(Mscratch, Machine, 0xDEADBEEF)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if old != 0 {
		t.Errorf("old value: want 0, got %#x", old)
	}

	v, err := b.Read(Mscratch, Machine)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if v != 0xDEADBEEF {
		t.Errorf("Mscratch: want 0xDEADBEEF, got %#x", v)
	}
}

func TestWriteRejectsInsufficientPrivilege(t *testing.T) {
	b := newBank()

	_, err := b.Write(Mscratch, Supervisor, 1)

	var illegal *ErrIllegal
	if !errors.As(err, &illegal) {
		t.Fatalf("expected ErrIllegal writing an M-mode CSR from S-mode, got %v", err)
	}
}

func TestWriteRejectsReadOnlyCSR(t *testing.T) {
	b := newBank()

	_, err := b.Write(Cycle, Machine, 1)

	var illegal *ErrIllegal
	if !errors.As(err, &illegal) {
		t.Fatalf("expected ErrIllegal writing a read-only counter CSR, got %v", err)
	}
}

func TestSetBitsClearBits(t *testing.T) {
	b := newBank()

	if _, err := b.Write(Mie, Machine, 0b0010); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := b.SetBits(Mie, Machine, 0b1000); err != nil {
		t.Fatalf("SetBits: %v", err)
	}

	v, _ := b.Read(Mie, Machine)
	if v != 0b1010 {
		t.Errorf("after SetBits: want 0b1010, got %#b", v)
	}

	if _, err := b.ClearBits(Mie, Machine, 0b0010); err != nil {
		t.Fatalf("ClearBits: %v", err)
	}

	v, _ = b.Read(Mie, Machine)
	if v != 0b1000 {
		t.Errorf("after ClearBits: want 0b1000, got %#b", v)
	}
}

func TestSstatusIsMaskedSubsetOfMstatus(t *testing.T) {
	b := newBank()

	if _, err := b.Write(Mstatus, Machine, MStatus{SIE: true, MIE: true}.Bits()); err != nil {
		t.Fatalf("Write Mstatus: %v", err)
	}

	sstatus, err := b.Read(Sstatus, Supervisor)
	if err != nil {
		t.Fatalf("Read Sstatus: %v", err)
	}

	if sstatus&(1<<3) != 0 {
		t.Errorf("sstatus must not expose MIE (bit 3), got %#x", sstatus)
	}

	if sstatus&(1<<1) == 0 {
		t.Errorf("sstatus must expose SIE (bit 1), got %#x", sstatus)
	}
}

func TestMStatusBitsRoundTrip(t *testing.T) {
	s := MStatus{SIE: true, MIE: true, SPIE: true, MPP: Machine, SUM: true}

	got := MStatusFromBits(s.Bits())

	if got.SIE != s.SIE || got.MIE != s.MIE || got.SPIE != s.SPIE || got.MPP != s.MPP || got.SUM != s.SUM {
		t.Errorf("round trip mismatch: want %+v, got %+v", s, got)
	}
}

func TestSatpFromBitsMasksUnknownMode(t *testing.T) {
	v := uint64(0b1111) << 60 // not a legal mode value

	got := SatpFromBits(v)
	if got.Mode != Bare {
		t.Errorf("unrecognized satp mode must WARL-mask to Bare, got %d", got.Mode)
	}
}

func TestInterruptBitsSetClear(t *testing.T) {
	var b InterruptBits

	b.SetBit(int(InterruptMachineTimer))

	if b.Load()&(1<<InterruptMachineTimer) == 0 {
		t.Fatal("expected machine timer bit set")
	}

	b.ClearBit(int(InterruptMachineTimer))

	if b.Load()&(1<<InterruptMachineTimer) != 0 {
		t.Error("expected machine timer bit cleared")
	}
}

func TestMisaHasExtension(t *testing.T) {
	m := DefaultMisa()

	for _, ch := range []byte{'I', 'M', 'A', 'F', 'D', 'C', 'S', 'U'} {
		if !m.Has(ch) {
			t.Errorf("DefaultMisa: expected extension %c enabled", ch)
		}
	}

	if m.Has('V') {
		t.Error("DefaultMisa: V extension must not be enabled")
	}
}
