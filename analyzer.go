package main

import (
	"fmt"
	"math"
	"math/rand"
	"unsafe"
)

// DramAnalyzer measures the two timing quantities the jitter and fuzzer
// depend on: the row-conflict threshold and the number of row
// activations that fit inside one refresh interval (tREFI). It also
// discovers groups of same-bank addresses for use as sync aggressors.
type DramAnalyzer struct {
	mc         MemConfiguration
	base       uintptr
	rowCount   int
	totalBanks int
	rng        *rand.Rand

	threshold uint64
	banks     [][]uintptr // per-bank sample offsets accepted by FindBankConflicts
}

func NewDramAnalyzer(mc MemConfiguration, base uintptr, rowCount, totalBanks int, rng *rand.Rand) *DramAnalyzer {
	return &DramAnalyzer{mc: mc, base: base, rowCount: rowCount, totalBanks: totalBanks, rng: rng,
		banks: make([][]uintptr, totalBanks)}
}

func (a *DramAnalyzer) Threshold() uint64     { return a.threshold }
func (a *DramAnalyzer) SetThreshold(t uint64) { a.threshold = t }

// timeMeasurer is the jitted timing primitive (see jitter.go,
// MeasurePair): it realizes the mfence/rdtscp/clflushopt bracket the
// original tool wrote as inline assembly.
type timeMeasurer interface {
	MeasurePair(a, b uintptr, rounds int) uint64
}

// FindBankConflicts samples random address offsets within the arena until
// it has located, for every bank, an offset whose access time against
// every previously accepted bank's representative stays below threshold
// (no cross-bank conflict) while its access time against its own
// emerging group exceeds threshold (a same-bank conflict).
func (a *DramAnalyzer) FindBankConflicts(tm timeMeasurer, arenaSize uint64, remainingTries int) error {
	found := 0
	for found < a.totalBanks && remainingTries > 0 {
		remainingTries--
		candidate := uintptr(a.rng.Int63n(int64(arenaSize)))

		conflictsOtherBank := false
		for b := 0; b < found; b++ {
			for _, rep := range a.banks[b] {
				if tm.MeasurePair(a.base+candidate, a.base+rep, 100) > a.threshold {
					conflictsOtherBank = true
					break
				}
			}
			if conflictsOtherBank {
				break
			}
		}
		if conflictsOtherBank {
			continue
		}

		partner := uintptr(a.rng.Int63n(int64(arenaSize)))
		if tm.MeasurePair(a.base+candidate, a.base+partner, 1000) < a.threshold {
			continue
		}
		a.banks[found] = append(a.banks[found], candidate, partner)
		found++
	}
	if found < a.totalBanks {
		return fmt.Errorf("analyzer: found only %d/%d bank conflicts within budget", found, a.totalBanks)
	}
	return nil
}

// FindTargets expands bank b's accepted samples into ten distinct
// same-bank addresses, accepting a new random candidate only if its
// access time against every address already in the set reaches the
// threshold.
func (a *DramAnalyzer) FindTargets(tm timeMeasurer, bank int, arenaSize uint64) []DRAMAddr {
	const wanted = 10
	existing := append([]uintptr(nil), a.banks[bank]...)
	for len(existing) < wanted {
		candidate := uintptr(a.rng.Int63n(int64(arenaSize)))
		ok := true
		for _, e := range existing {
			if tm.MeasurePair(a.base+candidate, a.base+e, 100) < a.threshold {
				ok = false
				break
			}
		}
		if ok {
			existing = append(existing, candidate)
		}
	}
	out := make([]DRAMAddr, 0, len(existing))
	for _, e := range existing {
		out = append(out, a.mc.FromVirt(unsafe.Pointer(a.base+e), a.base))
	}
	return out
}

// MeasureThreshold samples pairs in the same bank and derives the
// row-conflict threshold as mean(same-row) + (mean(diff-row) -
// mean(same-row))/2, matching the original tool's derivation.
func MeasureThreshold(tm timeMeasurer, base, diffRow, sameRow uintptr, rounds int) uint64 {
	tDiff := tm.MeasurePair(base, diffRow, rounds)
	tSame := tm.MeasurePair(base, sameRow, rounds)
	return tSame + (tDiff-tSame)/2
}

// CountActsPerTrefi continuously times a same-bank/different-row pair,
// looking for the refresh-induced timing spike, and returns the mean
// number of activations observed between spikes once the running
// estimate's standard deviation (computed only over above-mean samples)
// drops below 3.0. If that never happens within the measurement budget,
// it returns the running mean when that mean is above 5 and an error
// otherwise; the threshold is not raised and the measurement is not
// restarted.
func (a *DramAnalyzer) CountActsPerTrefi(tm timeMeasurer, base, diffRow uintptr) (float64, error) {
	const skipFirst = 50
	const convergeEvery = 200
	const maxOuterRounds = 2000

	var acts []float64
	var runningSum float64
	eventsSeen := 0
	sinceEvent := 0

	for round := 0; round < maxOuterRounds*convergeEvery; round++ {
		t := tm.MeasurePair(base, diffRow, 1)
		sinceEvent++
		if t <= a.threshold {
			continue
		}
		eventsSeen++
		if eventsSeen > skipFirst {
			v := float64(sinceEvent * 2)
			acts = append(acts, v)
			runningSum += v
			if len(acts)%convergeEvery == 0 {
				mean := runningSum / float64(len(acts))
				if std := computeStdAboveMean(acts, mean); std < 3.0 {
					return mean, nil
				}
			}
		}
		sinceEvent = 0
	}
	if len(acts) == 0 {
		return 0, fmt.Errorf("analyzer: acts-per-trefi did not converge")
	}
	mean := runningSum / float64(len(acts))
	if mean <= 5 {
		return 0, fmt.Errorf("analyzer: acts-per-trefi converged implausibly low (%.2f)", mean)
	}
	return mean, nil
}

func computeStdAboveMean(vals []float64, mean float64) float64 {
	var sumSq float64
	n := 0
	for _, v := range vals {
		if v < mean {
			continue
		}
		d := v - mean
		sumSq += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}
