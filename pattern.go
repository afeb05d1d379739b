package main

import "math/rand"

// AggressorID is a symbolic identifier for one row participating in a
// pattern; it is purely abstract until a PatternAddressMapper assigns it
// to a concrete DRAM row.
type AggressorID int

const unassignedAggressor AggressorID = -1

// AggressorAccessPattern is a tuple (frequency, amplitude, start_offset,
// aggressors): within each window of length base_period/frequency,
// beginning at start_offset, the aggressor sequence is accessed
// amplitude times back-to-back.
type AggressorAccessPattern struct {
	Frequency   int
	Amplitude   int
	StartOffset int
	Aggressors  []AggressorID
}

func (a AggressorAccessPattern) slotSpan() int {
	return a.Amplitude * len(a.Aggressors)
}

// HammeringPattern is the abstract frequency-based access-sequence
// timeline built over a base period.
type HammeringPattern struct {
	InstanceID       string
	BasePeriod       int
	TotalActivations int
	Aggressors       []AggressorID // length TotalActivations; the timeline
	AggAccessPatterns []AggressorAccessPattern
	AddressMappings  []*PatternAddressMapper
}

// BuildPattern lays AAPs down onto a timeline of length params.TotalActs
// in decreasing-frequency order, filling any remaining slots with fresh,
// frequency-1 aggressors, exactly as the original pattern generator did.
func BuildPattern(instanceID string, params FuzzingParameterSet, rng *rand.Rand) *HammeringPattern {
	p := &HammeringPattern{
		InstanceID:       instanceID,
		BasePeriod:       params.BasePeriod,
		TotalActivations: params.TotalActs,
		Aggressors:       make([]AggressorID, params.TotalActs),
	}
	for i := range p.Aggressors {
		p.Aggressors[i] = unassignedAggressor
	}

	aaps := make([]AggressorAccessPattern, len(params.AAPs))
	copy(aaps, params.AAPs)
	// Decreasing frequency order, matching the original builder's
	// traversal so high-frequency (tightly repeated) aggressors claim
	// their slots before low-frequency ones compete for the remainder.
	for i := 1; i < len(aaps); i++ {
		for j := i; j > 0 && aaps[j].Frequency > aaps[j-1].Frequency; j-- {
			aaps[j], aaps[j-1] = aaps[j-1], aaps[j]
		}
	}

	nextAggressor := AggressorID(0)
	for _, aap := range aaps {
		if aap.Frequency <= 0 || len(aap.Aggressors) == 0 {
			continue
		}
		subPeriod := p.BasePeriod / aap.Frequency
		if subPeriod <= 0 {
			continue
		}
		numPeriods := p.TotalActivations / p.BasePeriod
		start := aap.StartOffset % subPeriod
		for period := 0; period < numPeriods; period++ {
			base := period*p.BasePeriod + 0
			for rep := 0; rep < aap.Frequency; rep++ {
				windowBase := base + rep*subPeriod + start
				for a := 0; a < aap.Amplitude; a++ {
					for idx, agg := range aap.Aggressors {
						slot := windowBase + a*len(aap.Aggressors) + idx
						if slot < 0 || slot >= len(p.Aggressors) {
							continue
						}
						if p.Aggressors[slot] == unassignedAggressor {
							p.Aggressors[slot] = agg
						}
					}
				}
			}
		}
		p.AggAccessPatterns = append(p.AggAccessPatterns, aap)
		for _, agg := range aap.Aggressors {
			if int(agg) >= int(nextAggressor) {
				nextAggressor = agg + 1
			}
		}
	}

	// Fill remaining unassigned slots with fresh frequency-1 aggressors.
	for i := range p.Aggressors {
		if p.Aggressors[i] == unassignedAggressor {
			p.Aggressors[i] = nextAggressor
			p.AggAccessPatterns = append(p.AggAccessPatterns, AggressorAccessPattern{
				Frequency:   1,
				Amplitude:   1,
				StartOffset: 0,
				Aggressors:  []AggressorID{nextAggressor},
			})
			nextAggressor++
		}
	}
	return p
}

// AggressorSet returns the distinct aggressor ids referenced anywhere in
// the pattern's timeline.
func (p *HammeringPattern) AggressorSet() []AggressorID {
	seen := make(map[AggressorID]bool)
	var out []AggressorID
	for _, a := range p.Aggressors {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
