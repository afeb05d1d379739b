package main

import (
	"math/rand"
	"testing"
)

func TestBuildPatternFillsEverySlot(t *testing.T) {
	params := FuzzingParameterSet{
		BasePeriod: 64,
		TotalActs:  64 * 3,
		AAPs: []AggressorAccessPattern{
			{Frequency: 1, Amplitude: 2, StartOffset: 0, Aggressors: []AggressorID{0, 1}},
			{Frequency: 2, Amplitude: 1, StartOffset: 4, Aggressors: []AggressorID{2}},
		},
	}
	rng := rand.New(rand.NewSource(42))
	p := BuildPattern("t0", params, rng)

	if len(p.Aggressors) != params.TotalActs {
		t.Fatalf("expected %d slots, got %d", params.TotalActs, len(p.Aggressors))
	}
	for i, a := range p.Aggressors {
		if a == unassignedAggressor {
			t.Fatalf("slot %d left unassigned", i)
		}
	}

	referenced := make(map[AggressorID]bool)
	for _, aap := range p.AggAccessPatterns {
		for _, agg := range aap.Aggressors {
			referenced[agg] = true
		}
	}
	for _, agg := range p.Aggressors {
		if !referenced[agg] {
			t.Errorf("aggressor %d appears in the timeline but not in any access pattern", agg)
		}
	}
}

func TestBuildPatternLaysMultiAggressorSequenceConsecutively(t *testing.T) {
	// Mirrors scenario S2: B=16, AAP (f=2,a=2,s=0,[A,B]) should produce
	// A,B,A,B,_,_,_,_ in the first sub-period, not A,_,A,_,... with B
	// dropped because every repetition landed on A's slot.
	const a, b = AggressorID(100), AggressorID(101)
	params := FuzzingParameterSet{
		BasePeriod: 16,
		TotalActs:  16,
		AAPs: []AggressorAccessPattern{
			{Frequency: 2, Amplitude: 2, StartOffset: 0, Aggressors: []AggressorID{a, b}},
		},
	}
	rng := rand.New(rand.NewSource(7))
	p := BuildPattern("t2", params, rng)

	want := []AggressorID{a, b, a, b}
	got := p.Aggressors[0:4]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sub-period 0: got %v, want %v", got, want)
		}
	}
	foundB := false
	for _, agg := range p.Aggressors {
		if agg == b {
			foundB = true
		}
	}
	if !foundB {
		t.Fatalf("aggressor B never appears in the timeline: %v", p.Aggressors)
	}
}

func TestBuildPatternAggressorSetIsDistinct(t *testing.T) {
	params := FuzzingParameterSet{
		BasePeriod: 32,
		TotalActs:  32 * 2,
		AAPs: []AggressorAccessPattern{
			{Frequency: 1, Amplitude: 1, StartOffset: 0, Aggressors: []AggressorID{0}},
		},
	}
	rng := rand.New(rand.NewSource(1))
	p := BuildPattern("t1", params, rng)
	set := p.AggressorSet()
	seen := map[AggressorID]bool{}
	for _, a := range set {
		if seen[a] {
			t.Errorf("AggressorSet returned duplicate id %d", a)
		}
		seen[a] = true
	}
}
