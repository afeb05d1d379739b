package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SummaryMetadata describes one fuzzing run for later replay.
type SummaryMetadata struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	NumPatterns   int       `json:"num_patterns"`
	MemoryConfig  string    `json:"memory_config"`
	Name          string    `json:"name"`
	ConfigPath    string    `json:"config_path"`
}

// MappingSummary is the persisted shape of one PatternAddressMapper.
type MappingSummary struct {
	InstanceID     string                `json:"instance_id"`
	Bank           int                   `json:"bank"`
	StartRow       int                   `json:"start_row"`
	AggIDToDramRow map[AggressorID]int   `json:"agg_id_to_dram_row"`
	BitFlips       [][]BitFlip           `json:"bit_flips"`
}

// PatternSummary is the persisted shape of one HammeringPattern.
type PatternSummary struct {
	InstanceID        string                   `json:"instance_id"`
	BasePeriod        int                      `json:"base_period"`
	TotalActs         int                      `json:"total_acts"`
	Aggressors        []AggressorID            `json:"aggressors"`
	AggAccessPatterns []AggressorAccessPattern `json:"agg_access_patterns"`
	AddressMappings   []MappingSummary         `json:"address_mappings"`
}

// FuzzSummary is the top-level fuzz-summary.json document.
type FuzzSummary struct {
	Metadata         SummaryMetadata  `json:"metadata"`
	HammeringPatterns []PatternSummary `json:"hammering_patterns"`
}

// patternToSummary converts a live pattern into its persisted form.
func patternToSummary(p *HammeringPattern) PatternSummary {
	ps := PatternSummary{
		InstanceID:        p.InstanceID,
		BasePeriod:        p.BasePeriod,
		TotalActs:         p.TotalActivations,
		Aggressors:        p.Aggressors,
		AggAccessPatterns: p.AggAccessPatterns,
	}
	for _, m := range p.AddressMappings {
		ps.AddressMappings = append(ps.AddressMappings, MappingSummary{
			InstanceID:     m.InstanceID,
			Bank:           m.Bank,
			StartRow:       m.StartRow,
			AggIDToDramRow: m.AggIDToRow,
			BitFlips:       m.BitFlips,
		})
	}
	return ps
}

// WriteSummary truncates and rewrites path with the given run metadata
// and patterns.
func WriteSummary(path string, meta SummaryMetadata, patterns []*HammeringPattern) error {
	summary := FuzzSummary{Metadata: meta}
	for _, p := range patterns {
		summary.HammeringPatterns = append(summary.HammeringPatterns, patternToSummary(p))
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("summary: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("summary: write %q: %w", path, err)
	}
	return nil
}

// LoadSummary reads a previously written fuzz-summary.json.
func LoadSummary(path string) (*FuzzSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("summary: read %q: %w", path, err)
	}
	var summary FuzzSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("summary: parse %q: %w", path, err)
	}
	return &summary, nil
}
