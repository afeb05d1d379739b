package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndLoadSummaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fuzz-summary.json")

	pattern := &HammeringPattern{
		InstanceID:       "p0",
		BasePeriod:       64,
		TotalActivations: 128,
		Aggressors:       []AggressorID{0, 1, 0, 1},
		AggAccessPatterns: []AggressorAccessPattern{
			{Frequency: 2, Amplitude: 1, Aggressors: []AggressorID{0, 1}},
		},
	}
	mapper := &PatternAddressMapper{
		InstanceID: "p0-m0",
		Bank:       2,
		StartRow:   10,
		AggIDToRow: map[AggressorID]int{0: 10, 1: 15},
		BitFlips: [][]BitFlip{
			{{Address: 0x2000000100, Row: 10, BitIndex: 3, ExpectedByte: 0xff, ActualByte: 0xf7}},
		},
	}
	pattern.AddressMappings = []*PatternAddressMapper{mapper}

	meta := SummaryMetadata{Start: time.Now(), End: time.Now(), NumPatterns: 1, Name: "test"}
	if err := WriteSummary(path, meta, []*HammeringPattern{pattern}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	loaded, err := LoadSummary(path)
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if len(loaded.HammeringPatterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(loaded.HammeringPatterns))
	}
	ps := loaded.HammeringPatterns[0]
	if ps.InstanceID != "p0" || ps.BasePeriod != 64 || ps.TotalActs != 128 {
		t.Errorf("pattern fields did not round-trip: %+v", ps)
	}
	if len(ps.AddressMappings) != 1 {
		t.Fatalf("expected 1 mapping, got %d", len(ps.AddressMappings))
	}
	ms := ps.AddressMappings[0]
	if ms.Bank != 2 || ms.StartRow != 10 || ms.AggIDToDramRow[0] != 10 {
		t.Errorf("mapping fields did not round-trip: %+v", ms)
	}
	if len(ms.BitFlips) != 1 || len(ms.BitFlips[0]) != 1 {
		t.Fatalf("expected one recorded flip round with one flip")
	}
	if ms.BitFlips[0][0].BitIndex != 3 {
		t.Errorf("bit flip did not round-trip: %+v", ms.BitFlips[0][0])
	}
}

func TestSelectPatternsToReplayPicksBestByFlipCount(t *testing.T) {
	summary := &FuzzSummary{
		HammeringPatterns: []PatternSummary{
			{InstanceID: "low", AddressMappings: []MappingSummary{{BitFlips: [][]BitFlip{{{}}}}}},
			{InstanceID: "high", AddressMappings: []MappingSummary{{BitFlips: [][]BitFlip{{{}, {}, {}}}}}},
		},
	}
	got := selectPatternsToReplay(summary, nil)
	if len(got) != 1 || got[0].InstanceID != "high" {
		t.Errorf("expected the higher-flip-count pattern 'high', got %+v", got)
	}
}

func TestSelectPatternsToReplayByID(t *testing.T) {
	summary := &FuzzSummary{
		HammeringPatterns: []PatternSummary{
			{InstanceID: "a"}, {InstanceID: "b"}, {InstanceID: "c"},
		},
	}
	got := selectPatternsToReplay(summary, []string{"b", "c"})
	if len(got) != 2 || got[0].InstanceID != "b" || got[1].InstanceID != "c" {
		t.Errorf("got %+v", got)
	}
}
