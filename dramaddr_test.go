package main

import "testing"

func testConfig() MemConfiguration {
	return MemConfiguration{
		BankBits: []BitDef{{Bits: []uint{6}}, {Bits: []uint{13}}, {Bits: []uint{14}}, {Bits: []uint{17}}},
		RowBits:  []BitDef{{Bits: []uint{18}}, {Bits: []uint{19}}, {Bits: []uint{20}}, {Bits: []uint{21}}, {Bits: []uint{22}}},
		ColBits:  []BitDef{{Bits: []uint{3}}, {Bits: []uint{4}}, {Bits: []uint{5}}},
	}
}

func TestDRAMAddrRoundTrip(t *testing.T) {
	mc := testConfig()
	const base = uintptr(0x2000000000)

	cases := []DRAMAddr{
		{Bank: 0, Row: 0, Col: 0},
		{Bank: 3, Row: 17, Col: 5},
		{Bank: 15, Row: 31, Col: 7},
	}
	for _, want := range cases {
		p := mc.ToVirt(want, base)
		got := mc.FromVirt(p, base)
		if got != want {
			t.Errorf("round trip mismatch: want %+v got %+v", want, got)
		}
	}
}

func TestDRAMAddrAdd(t *testing.T) {
	d := DRAMAddr{Bank: 1, Row: 2, Col: 3}
	got := d.Add(1, -1, 2)
	want := DRAMAddr{Bank: 2, Row: 1, Col: 5}
	if got != want {
		t.Errorf("Add: want %+v got %+v", want, got)
	}
}
