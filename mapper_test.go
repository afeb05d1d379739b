package main

import (
	"math/rand"
	"testing"
)

func TestMapperRandomizeAddressesInjective(t *testing.T) {
	mc := testConfig()
	m := NewPatternAddressMapper("m0", mc, 0x2000000000, 256)
	params := FuzzingParameterSet{
		InterAggressorRowDist: RowDistance{Min: 1, Max: 3},
		InterPatternRowDist:   RowDistance{Min: 5, Max: 9},
	}
	aaps := []AggressorAccessPattern{
		{Aggressors: []AggressorID{0, 1, 2}},
		{Aggressors: []AggressorID{3, 4}},
	}
	rng := rand.New(rand.NewSource(7))
	m.RandomizeAddresses(params, aaps, 16, rng)

	rows := map[int]bool{}
	for _, agg := range []AggressorID{0, 1, 2, 3, 4} {
		row, ok := m.AggIDToRow[agg]
		if !ok {
			t.Fatalf("aggressor %d was not assigned a row", agg)
		}
		if rows[row] {
			t.Errorf("row %d assigned to more than one aggressor", row)
		}
		rows[row] = true
	}
}

func TestShiftMappingPreservesRelativeOffsets(t *testing.T) {
	mc := testConfig()
	m := NewPatternAddressMapper("m1", mc, 0x2000000000, 1000)
	m.AggIDToRow = map[AggressorID]int{0: 10, 1: 15, 2: 20}

	before := map[AggressorID]int{}
	for k, v := range m.AggIDToRow {
		before[k] = v
	}

	m.ShiftMapping(5, nil)

	for agg, row := range m.AggIDToRow {
		want := (before[agg] + 5) % 1000
		if row != want {
			t.Errorf("aggressor %d: want row %d got %d", agg, want, row)
		}
	}
}

func TestShiftMappingExcludesNamedAggressors(t *testing.T) {
	mc := testConfig()
	m := NewPatternAddressMapper("m2", mc, 0x2000000000, 1000)
	m.AggIDToRow = map[AggressorID]int{0: 10, 1: 15}
	m.ShiftMapping(5, map[AggressorID]bool{1: true})

	if m.AggIDToRow[0] != 15 {
		t.Errorf("aggressor 0 should have shifted to 15, got %d", m.AggIDToRow[0])
	}
	if m.AggIDToRow[1] != 15 {
		t.Errorf("excluded aggressor 1 should remain at 15, got %d", m.AggIDToRow[1])
	}
}

func TestGetRandomNonaccessedRowsExcludesAssigned(t *testing.T) {
	mc := testConfig()
	m := NewPatternAddressMapper("m3", mc, 0x2000000000, 8)
	m.AggIDToRow = map[AggressorID]int{0: 0, 1: 1, 2: 2, 3: 3, 4: 4, 5: 5, 6: 6}
	rng := rand.New(rand.NewSource(3))
	rows := m.GetRandomNonaccessedRows(1, rng)
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 available row, got %d", len(rows))
	}
	if rows[0].Row != 7 {
		t.Errorf("expected the single free row 7, got %d", rows[0].Row)
	}
}
