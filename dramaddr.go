package main

import "unsafe"

// MemConfiguration holds the device-specific linear bit functions that
// translate between a virtual address (relative to the allocation base)
// and a (bank, row, column) triple. Each field is an ordered list of bit
// groups; output bit i of the field is the XOR of the physical address
// bits named by group i.
type MemConfiguration struct {
	RowBits  []BitDef
	ColBits  []BitDef
	BankBits []BitDef
}

// BuildMemConfiguration adapts the JSON-decoded device config into the
// address-translation tables.
func BuildMemConfiguration(cfg *EccsmithConfig) MemConfiguration {
	return MemConfiguration{
		RowBits:  cfg.RowBits,
		ColBits:  cfg.ColBits,
		BankBits: cfg.BankBits,
	}
}

// DRAMAddr is a logical (bank, row, column) address.
type DRAMAddr struct {
	Bank int
	Row  int
	Col  int
}

// Add returns a new DRAMAddr offset component-wise; no wrapping is
// performed here, callers are expected to wrap against row/bank counts
// where that matters (the mapper does).
func (d DRAMAddr) Add(dBank, dRow, dCol int) DRAMAddr {
	return DRAMAddr{Bank: d.Bank + dBank, Row: d.Row + dRow, Col: d.Col + dCol}
}

func xorBits(addr uint64, group BitDef) uint64 {
	var v uint64
	for _, bit := range group.Bits {
		v ^= (addr >> bit) & 1
	}
	return v
}

func encodeField(addr uint64, groups []BitDef) int {
	var out int
	for i, g := range groups {
		out |= int(xorBits(addr, g)) << uint(i)
	}
	return out
}

// ToVirt computes the virtual address (as an offset from base) that maps
// to d under mc. It corrects the candidate address bit by bit: for each
// output bit of each field (row, then bank, then column) whose decoded
// value doesn't yet match the target, it flips the last physical bit
// listed in that bit's group. Two such passes are made; the result is not
// re-checked afterwards.
func (mc MemConfiguration) ToVirt(d DRAMAddr, base uintptr) unsafe.Pointer {
	var addr uint64
	target := DRAMAddr{Bank: d.Bank, Row: d.Row, Col: d.Col}

	fields := []struct {
		groups []BitDef
		want   int
	}{
		{mc.RowBits, target.Row},
		{mc.BankBits, target.Bank},
		{mc.ColBits, target.Col},
	}

	for pass := 0; pass < 2; pass++ {
		for _, f := range fields {
			for i, g := range f.groups {
				wantBit := (f.want >> uint(i)) & 1
				if len(g.Bits) == 0 {
					continue
				}
				pivot := g.Bits[len(g.Bits)-1]
				gotBit := int(xorBits(addr, g))
				if gotBit != wantBit {
					addr ^= 1 << pivot
				}
			}
		}
	}
	return unsafe.Pointer(base + uintptr(addr))
}

// FromVirt decodes a virtual address (as an offset from base) back into
// its (bank, row, column) triple.
func (mc MemConfiguration) FromVirt(p unsafe.Pointer, base uintptr) DRAMAddr {
	addr := uint64(uintptr(p) - base)
	return DRAMAddr{
		Bank: encodeField(addr, mc.BankBits),
		Row:  encodeField(addr, mc.RowBits),
		Col:  encodeField(addr, mc.ColBits),
	}
}
