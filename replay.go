package main

import (
	"fmt"
	"strings"
)

// runReplay re-runs recorded patterns from a loaded summary, optionally
// sweeping the best one across a wider area, reusing every core
// component exactly as a fresh fuzzing run would.
func runReplay(logger *Logger, cfg *EccsmithConfig, summary *FuzzSummary, idsCSV string, sweep bool) error {
	fc, err := setupFuzzContext(logger, cfg)
	if err != nil {
		return err
	}
	defer fc.mem.Close()
	if fc.ras != nil {
		defer fc.ras.Close()
	}

	ids := parseIDList(idsCSV)
	targets := selectPatternsToReplay(summary, ids)
	if len(targets) == 0 {
		return fmt.Errorf("replay: no patterns matched %q", idsCSV)
	}

	for _, ps := range targets {
		pattern, mappers := summaryToLive(ps)
		for _, mapper := range mappers {
			mapper.mc = fc.mc
			mapper.baseAddr = fc.mem.BaseAddr()
			mapper.rowCount = fc.rowCount
			if err := probeMapping(fc, pattern, mapper, RandomFuzzingParameterSet(fc.rng)); err != nil {
				logger.Errorf("replay %s: %v", mapper.InstanceID, err)
				continue
			}
			logger.Infof("replay %s: %d bit flip(s) reproduced", mapper.InstanceID, len(mapper.BitFlips[len(mapper.BitFlips)-1]))
		}
		if sweep && len(mappers) > 0 {
			if err := sweepMapping(fc, pattern, mappers[0], fc.mem.Size()); err != nil {
				logger.Errorf("replay sweep %s: %v", pattern.InstanceID, err)
			}
		}
	}
	return nil
}

// selectPatternsToReplay returns the named patterns, or — if ids is empty
// — the single pattern with the most recorded flips.
func selectPatternsToReplay(summary *FuzzSummary, ids []string) []PatternSummary {
	if len(ids) == 0 {
		best := -1
		bestFlips := -1
		for i, p := range summary.HammeringPatterns {
			n := 0
			for _, m := range p.AddressMappings {
				for _, round := range m.BitFlips {
					n += len(round)
				}
			}
			if n > bestFlips {
				bestFlips = n
				best = i
			}
		}
		if best < 0 {
			return nil
		}
		return summary.HammeringPatterns[best : best+1]
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []PatternSummary
	for _, p := range summary.HammeringPatterns {
		if want[p.InstanceID] {
			out = append(out, p)
		}
	}
	return out
}

// summaryToLive reconstructs a HammeringPattern and its mappers from a
// persisted PatternSummary.
func summaryToLive(ps PatternSummary) (*HammeringPattern, []*PatternAddressMapper) {
	pattern := &HammeringPattern{
		InstanceID:        ps.InstanceID,
		BasePeriod:        ps.BasePeriod,
		TotalActivations:  ps.TotalActs,
		Aggressors:        ps.Aggressors,
		AggAccessPatterns: ps.AggAccessPatterns,
	}
	mappers := make([]*PatternAddressMapper, 0, len(ps.AddressMappings))
	for _, ms := range ps.AddressMappings {
		m := &PatternAddressMapper{
			InstanceID: ms.InstanceID,
			Bank:       ms.Bank,
			StartRow:   ms.StartRow,
			AggIDToRow: ms.AggIDToDramRow,
			BitFlips:   ms.BitFlips,
		}
		mappers = append(mappers, m)
	}
	pattern.AddressMappings = mappers
	return pattern, mappers
}
