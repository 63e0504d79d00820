package pmp

import "testing"

func TestCheckNA4Region(t *testing.T) {
	p := New()

	// NA4 at pmpaddr covering 0x1000..0x1004, R|W, unlocked.
	p.WriteAddr(0, 0x1000>>2)
	p.WriteCfgGroup(0, uint64(Entry{RWX: Read | Write, AddrMatch: NA4}.toByte()))

	if !p.Check(0x1000, User, Read) {
		t.Error("expected read permitted inside NA4 region")
	}

	if p.Check(0x1000, User, Exec) {
		t.Error("expected exec denied, entry grants only R|W")
	}

	if p.Check(0x2000, User, Read) {
		t.Error("expected read denied outside any region at U-mode")
	}
}

func TestCheckMachineModeIgnoresUnlockedEntries(t *testing.T) {
	p := New()

	p.WriteAddr(0, 0x1000>>2)
	p.WriteCfgGroup(0, uint64(Entry{RWX: Read, AddrMatch: NA4}.toByte()))

	if !p.Check(0x5000, Machine, Write) {
		t.Error("M-mode access outside any locked entry must be permitted")
	}
}

func TestCheckMachineModeEnforcesLockedEntry(t *testing.T) {
	p := New()

	p.WriteAddr(0, 0x1000>>2)
	p.WriteCfgGroup(0, uint64(Entry{RWX: Read, AddrMatch: NA4, Locked: true}.toByte()))

	if p.Check(0x1000, Machine, Write) {
		t.Error("M-mode write inside a locked R-only region must be denied")
	}

	if !p.Check(0x1000, Machine, Read) {
		t.Error("M-mode read inside a locked R region must be permitted")
	}
}

func TestWriteEntryLockedIsSticky(t *testing.T) {
	p := New()

	p.WriteCfgGroup(0, uint64(Entry{RWX: Read, AddrMatch: NA4, Locked: true}.toByte()))
	p.WriteCfgGroup(0, uint64(Entry{RWX: Read | Write | Exec, AddrMatch: Off}.toByte()))

	v := p.ReadCfgGroup(0)
	if v&0b111 != uint64(Read) {
		t.Errorf("locked entry must ignore the second write, got RWX bits %#x", v&0b111)
	}
}

func TestWriteEntryRejectsReservedEncoding(t *testing.T) {
	p := New()

	p.WriteCfgGroup(0, uint64(Entry{RWX: Write, AddrMatch: NA4}.toByte())) // W=1,R=0 reserved

	v := p.ReadCfgGroup(0)
	if v != 0 {
		t.Errorf("reserved W=1,R=0 encoding must be dropped, got %#x", v)
	}
}

func TestWriteAddrIgnoredWhenLocked(t *testing.T) {
	p := New()

	p.WriteCfgGroup(0, uint64(Entry{RWX: Read, AddrMatch: NA4, Locked: true}.toByte()))
	p.WriteAddr(0, 0xDEAD)

	if p.ReadAddr(0) != 0 {
		t.Errorf("locked entry must ignore address writes, got %#x", p.ReadAddr(0))
	}
}

func TestNAPOTRegionDecoding(t *testing.T) {
	p := New()

	// NAPOT encoding for an 8-byte region at 0x2000: addr = (base>>2) | (size/8-1 ones below the boundary bit).
	// base=0x2000, size=8: pmpaddr = (0x2000>>2) | 0b0 = 0x800 with bit0=0 marks an 8-byte NAPOT region.
	p.WriteAddr(0, (uint64(0x2000)>>2)|0b0)
	p.WriteCfgGroup(0, uint64(Entry{RWX: Read, AddrMatch: NAPOT}.toByte()))

	if !p.Check(0x2000, User, Read) {
		t.Error("expected read permitted at the start of the NAPOT region")
	}
}

func TestNAPOTRegionDecodingIncludesLastByte(t *testing.T) {
	p := New()

	// 256-byte NAPOT region at 0x8000_0000: 5 trailing one bits below the
	// aligned base select a 2^8 = 256 byte region, per the NAPOT
	// decoding loop in regions().
	p.WriteAddr(0, (uint64(0x8000_0000)>>2)|0b11111)
	p.WriteCfgGroup(0, uint64(Entry{RWX: Read, AddrMatch: NAPOT}.toByte()))

	if !p.Check(0x8000_0000, User, Read) {
		t.Error("expected read permitted at the start of the NAPOT region")
	}

	if !p.Check(0x800000FF, User, Read) {
		t.Error("expected read permitted at the last byte of the NAPOT region (0x800000ff)")
	}

	if p.Check(0x80000100, User, Read) {
		t.Error("expected read denied one byte past the NAPOT region")
	}
}
