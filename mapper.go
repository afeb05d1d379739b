package main

import (
	"math/rand"
	"time"
	"unsafe"
)

// BitFlip records one observed memory corruption.
type BitFlip struct {
	Address      uintptr
	PageOffset   uint64
	Row          int
	BitIndex     int
	ExpectedByte byte
	ActualByte   byte
	ObservedAt   time.Time
}

// PatternAddressMapper binds an abstract HammeringPattern's aggressor ids
// to concrete DRAM rows within one bank.
type PatternAddressMapper struct {
	InstanceID        string
	Bank              int
	StartRow          int
	AggIDToRow        map[AggressorID]int
	Jitter            *CodeJitter
	BitFlips          [][]BitFlip
	CorrectedBitFlips int

	mc       MemConfiguration
	baseAddr uintptr
	rowCount int
}

// NewPatternAddressMapper creates an (as yet unassigned) mapper for the
// given memory arena.
func NewPatternAddressMapper(instanceID string, mc MemConfiguration, baseAddr uintptr, rowCount int) *PatternAddressMapper {
	return &PatternAddressMapper{
		InstanceID: instanceID,
		AggIDToRow: make(map[AggressorID]int),
		mc:         mc,
		baseAddr:   baseAddr,
		rowCount:   rowCount,
	}
}

// RandomizeAddresses assigns a random bank, a random start row, and a
// unique row per distinct aggressor id referenced by the pattern's AAPs.
// Row spacing within one AAP is drawn from the inter-aggressor
// distribution; spacing between AAPs uses the inter-pattern distribution.
func (m *PatternAddressMapper) RandomizeAddresses(params FuzzingParameterSet, aaps []AggressorAccessPattern, totalBanks int, rng *rand.Rand) {
	m.Bank = rng.Intn(totalBanks)
	m.StartRow = rng.Intn(m.rowCount)
	m.AggIDToRow = make(map[AggressorID]int)

	cursor := m.StartRow
	for _, aap := range aaps {
		cursor = (cursor + params.InterPatternRowDist.Sample(rng)) % m.rowCount
		for _, agg := range aap.Aggressors {
			if _, ok := m.AggIDToRow[agg]; ok {
				continue
			}
			m.AggIDToRow[agg] = cursor
			cursor = (cursor + params.InterAggressorRowDist.Sample(rng)) % m.rowCount
		}
	}
}

// ExportPattern resolves every timeline slot's aggressor id into a
// concrete virtual address, in issue order, for the jitter to consume.
func (m *PatternAddressMapper) ExportPattern(p *HammeringPattern) []unsafe.Pointer {
	out := make([]unsafe.Pointer, len(p.Aggressors))
	for i, agg := range p.Aggressors {
		row, ok := m.AggIDToRow[agg]
		if !ok {
			row = m.StartRow
		}
		addr := DRAMAddr{Bank: m.Bank, Row: row, Col: 0}
		out[i] = m.mc.ToVirt(addr, m.baseAddr)
	}
	return out
}

// ShiftMapping translates every assigned row by delta, except the
// aggressor ids set in excluded (exclusion is per aggressor id, not per
// AAP), preserving relative offsets — the
// mechanism behind both inter-probe relocation and wide-area sweeping.
func (m *PatternAddressMapper) ShiftMapping(delta int, excluded map[AggressorID]bool) {
	for agg, row := range m.AggIDToRow {
		if excluded[agg] {
			continue
		}
		newRow := (row + delta) % m.rowCount
		if newRow < 0 {
			newRow += m.rowCount
		}
		m.AggIDToRow[agg] = newRow
	}
}

// GetRandomNonaccessedRows returns n rows in m's bank that are not
// referenced by AggIDToRow, for use as warm-up traffic.
func (m *PatternAddressMapper) GetRandomNonaccessedRows(n int, rng *rand.Rand) []DRAMAddr {
	used := make(map[int]bool, len(m.AggIDToRow))
	for _, row := range m.AggIDToRow {
		used[row] = true
	}
	var out []DRAMAddr
	for len(out) < n && len(used) < m.rowCount {
		row := rng.Intn(m.rowCount)
		if used[row] {
			continue
		}
		used[row] = true
		out = append(out, DRAMAddr{Bank: m.Bank, Row: row, Col: 0})
	}
	return out
}

// RecordBitFlips appends a new scan result's flips as a fresh probe
// round.
func (m *PatternAddressMapper) RecordBitFlips(flips []BitFlip) {
	m.BitFlips = append(m.BitFlips, flips)
}

// TotalBitFlips sums flips across every recorded probe round.
func (m *PatternAddressMapper) TotalBitFlips() int {
	n := 0
	for _, round := range m.BitFlips {
		n += len(round)
	}
	return n
}

// RowDistance is a sampleable row-offset distribution (the original
// tool's "inter-aggressor"/"inter-pattern" row distance parameters),
// implemented as a uniform range [Min, Max].
type RowDistance struct {
	Min, Max int
}

func (d RowDistance) Sample(rng *rand.Rand) int {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rng.Intn(d.Max-d.Min+1)
}
