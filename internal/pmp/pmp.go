// Package pmp implements the physical memory protection unit: 64
// cfg/addr register pairs, NAPOT/TOR/NA4 address matching, the sticky lock
// bit, and the reserved write-without-read encoding.
//
// Grounded on the original Rust implementation's memory/pmp.rs
// (blackdragon2447/riscv_vm, kept in this pack's _examples/original_source),
// which spec.md's PMP module distills; the matching algorithm, the locked
// and reserved-encoding write-suppression rules, and the NAPOT range
// decoding below follow it directly.
package pmp

import "github.com/smoynes/rv64/internal/addr"

// Privilege mirrors csr.Privilege without importing it, to avoid a cyclic
// dependency (csr.Bank embeds *PMP). The numbering must stay identical to
// csr.Privilege's, since window.go converts between the two with a plain
// numeric cast rather than a mapping function.
type Privilege uint8

const (
	User       Privilege = 0
	Supervisor Privilege = 1
	Machine    Privilege = 3
)

// AccessMode is the permission being checked against a PMP entry.
type AccessMode uint8

const (
	Read AccessMode = 1 << iota
	Write
	Exec
)

// AddrMatch selects how pmpaddr is interpreted for a given entry.
type AddrMatch uint8

const (
	Off AddrMatch = iota
	TOR
	NA4
	NAPOT
)

// Entry is the decoded form of one pmpcfg byte.
type Entry struct {
	RWX       AccessMode
	AddrMatch AddrMatch
	Locked    bool
}

// fromByte decodes a raw pmpcfg byte.
func fromByte(b uint8) Entry {
	return Entry{
		RWX:       AccessMode(b & 0b111),
		AddrMatch: AddrMatch((b >> 3) & 0b11),
		Locked:    b&(1<<7) != 0,
	}
}

func (e Entry) toByte() uint8 {
	var b uint8

	b |= uint8(e.RWX) & 0b111
	b |= uint8(e.AddrMatch) << 3

	if e.Locked {
		b |= 1 << 7
	}

	return b
}

// reserved reports the W=1,R=0 encoding the privileged spec reserves for
// future use: writeEntry drops a write with this encoding, leaving the slot
// unchanged.
func (e Entry) reserved() bool {
	return e.RWX&Write != 0 && e.RWX&Read == 0
}

// NumEntries is the number of PMP cfg/addr register pairs.
const NumEntries = 64

// addrWARLMask keeps the low 54 bits of pmpaddr; the top 10 bits are WARL 0.
const addrWARLMask = 0x3F_FFFF_FFFF_FFFF

// PMP is the per-hart physical memory protection state.
type PMP struct {
	cfg  [NumEntries]Entry
	addr [NumEntries]uint64
}

// New returns a PMP bank with every entry disabled.
func New() *PMP {
	return &PMP{}
}

// region is one decoded, matchable address range.
type region struct {
	entry      Entry
	start, end addr.Address
}

func (p *PMP) regions() []region {
	var out []region

	for i, cfg := range p.cfg {
		switch cfg.AddrMatch {
		case Off:
			continue
		case TOR:
			var lo uint64
			if i > 0 {
				lo = p.addr[i-1] << 2
			}

			hi := p.addr[i] << 2
			out = append(out, region{cfg, addr.Address(lo), addr.Address(hi)})
		case NA4:
			lo := p.addr[i] << 2
			out = append(out, region{cfg, addr.Address(lo), addr.Address(lo + 4)})
		case NAPOT:
			a := p.addr[i]
			size := uint(3)

			for a%2 != 0 {
				size++
				a >>= 1
			}

			lowMask := ^uint64(0) << size
			lo := (p.addr[i] << 2) & lowMask
			hi := lo + (uint64(1) << size)
			out = append(out, region{cfg, addr.Address(lo), addr.Address(hi)})
		}
	}

	return out
}

// Check reports whether the access is permitted. Below Machine mode, the
// first matching, non-reserved entry governs the access and an address with
// no matching entry is denied. At Machine mode, only locked entries are
// enforced; an unmatched address (or the absence of any locked entry) is
// permitted.
func (p *PMP) Check(a addr.Address, priv Privilege, mode AccessMode) bool {
	if priv < Machine {
		for _, r := range p.regions() {
			if r.entry.reserved() {
				continue
			}

			if a >= r.start && a < r.end {
				return r.entry.RWX&mode != 0
			}
		}

		return false
	}

	for _, r := range p.regions() {
		if !r.entry.Locked || r.entry.reserved() {
			continue
		}

		if a >= r.start && a < r.end {
			return r.entry.RWX&mode != 0
		}
	}

	return true
}

// writeEntry applies the locked/reserved write-suppression rule: a write is
// dropped if the current entry is locked, or if the incoming value encodes
// the reserved W=1,R=0 combination.
func (p *PMP) writeEntry(i int, raw uint8) {
	cur := p.cfg[i]
	incoming := fromByte(raw)

	if cur.Locked || incoming.reserved() {
		return
	}

	p.cfg[i] = incoming
}

// ReadCfgGroup reads the 8-byte pmpcfgN register at even index n (n in
// 0,2,4,...,14), packing entries [4n, 4n+8) little-endian.
func (p *PMP) ReadCfgGroup(n int) uint64 {
	base := n * 4

	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(p.cfg[base+i].toByte()) << (8 * i)
	}

	return v
}

// WriteCfgGroup writes the 8-byte pmpcfgN register, applying the
// lock/reserved-encoding suppression rule per byte.
func (p *PMP) WriteCfgGroup(n int, value uint64) {
	base := n * 4

	for i := 0; i < 8; i++ {
		p.writeEntry(base+i, uint8(value>>(8*i)))
	}
}

// ReadAddr reads pmpaddrN.
func (p *PMP) ReadAddr(n int) uint64 { return p.addr[n] }

// WriteAddr writes pmpaddrN, masking the WARL-zero top 10 bits. Locked
// entries (and, per the privileged spec, the entry below a locked TOR entry)
// ignore address writes entirely in hardware; this model enforces the
// simpler per-entry lock the original implementation uses.
func (p *PMP) WriteAddr(n int, value uint64) {
	if p.cfg[n].Locked {
		return
	}

	p.addr[n] = value & addrWARLMask
}
