package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"
	"unsafe"
)

// FuzzingParameterSet holds the randomized knobs for one pattern: the
// static constants that hold for a whole run, and the dynamic values
// rerolled per pattern.
type FuzzingParameterSet struct {
	BasePeriod int
	TotalActs  int
	AAPs       []AggressorAccessPattern

	InterAggressorRowDist RowDistance
	InterPatternRowDist   RowDistance

	Flushing    FlushingStrategy
	Fencing     FencingStrategy
	SyncEachRef bool
	NumSyncAggs int

	WaitUntilHammeringUs int
}

// RandomFuzzingParameterSet rerolls the dynamic portion of a parameter
// set: base period, total activations, and a handful of aggressor access
// patterns of varying frequency/amplitude/phase, matching the original
// tool's per-pattern randomization.
func RandomFuzzingParameterSet(rng *rand.Rand) FuzzingParameterSet {
	basePeriod := []int{64, 128, 256}[rng.Intn(3)]
	numPeriods := 2 + rng.Intn(4)
	totalActs := basePeriod * numPeriods

	numAAPs := 2 + rng.Intn(4)
	aaps := make([]AggressorAccessPattern, 0, numAAPs)
	freqChoices := []int{1, 2, 4, 8}
	for i := 0; i < numAAPs; i++ {
		freq := freqChoices[rng.Intn(len(freqChoices))]
		amp := 1 + rng.Intn(3)
		numAggs := 1 + rng.Intn(3)
		aggs := make([]AggressorID, numAggs)
		for j := range aggs {
			aggs[j] = AggressorID(i*10 + j)
		}
		subPeriod := basePeriod / freq
		var offset int
		if subPeriod > 0 {
			offset = rng.Intn(subPeriod)
		}
		aaps = append(aaps, AggressorAccessPattern{
			Frequency:   freq,
			Amplitude:   amp,
			StartOffset: offset,
			Aggressors:  aggs,
		})
	}

	flushing := FlushEarliestPossible
	if rng.Intn(2) == 1 {
		flushing = FlushLatestPossible
	}
	fencing := FenceOmit
	if rng.Intn(2) == 1 {
		fencing = FenceLatestPossible
	}

	return FuzzingParameterSet{
		BasePeriod: basePeriod,
		TotalActs:  totalActs,
		AAPs:       aaps,
		InterAggressorRowDist: RowDistance{Min: 1, Max: 4},
		InterPatternRowDist:   RowDistance{Min: 2, Max: 12},
		Flushing:              flushing,
		Fencing:               fencing,
		SyncEachRef:           rng.Intn(2) == 0,
		NumSyncAggs:           2,
		WaitUntilHammeringUs:  64000,
	}
}

// fuzzRunOptions are the CLI-level knobs for a fuzzing run.
type fuzzRunOptions struct {
	runtimeLimit time.Duration
	probes       int
	sweeping     bool
}

// fuzzContext bundles the collaborators a probe needs; threaded
// explicitly rather than held in package-level globals (see design
// notes: explicit context over singletons).
type fuzzContext struct {
	logger   *Logger
	cfg      *EccsmithConfig
	mc       MemConfiguration
	mem      *Memory
	analyzer *DramAnalyzer
	jitter   *CodeJitter
	ras      *RasObserver
	rng      *rand.Rand

	actsPerTrefi int
	threshold    uint64
	rowCount     int
}

// runFuzz drives the n-sided frequency-based hammering loop: generate a
// pattern, probe it across several address mappings, track effective
// patterns, and periodically re-measure acts-per-tREFI.
func runFuzz(logger *Logger, cfg *EccsmithConfig, opts fuzzRunOptions) error {
	fc, err := setupFuzzContext(logger, cfg)
	if err != nil {
		return err
	}
	defer fc.mem.Close()
	if fc.ras != nil {
		defer fc.ras.Close()
	}

	start := time.Now()
	deadline := start.Add(opts.runtimeLimit)

	var patterns []*HammeringPattern
	var bestPattern *HammeringPattern
	var bestMapper *PatternAddressMapper
	bestFlips := -1

	patternCount := 0
	for time.Now().Before(deadline) && len(patterns) < int(fc.cfg.EffectivePatterns) {
		params := RandomFuzzingParameterSet(fc.rng)
		instanceID := fmt.Sprintf("p%04d", patternCount)
		pattern := BuildPattern(instanceID, params, fc.rng)
		shuffleAAPs(pattern.AggAccessPatterns, fc.rng)

		patternFlips := 0
		for i := 0; i < opts.probes; i++ {
			mapperID := fmt.Sprintf("%s-m%d", instanceID, i)
			mapper := NewPatternAddressMapper(mapperID, fc.mc, fc.mem.BaseAddr(), fc.rowCount)
			mapper.RandomizeAddresses(params, pattern.AggAccessPatterns, int(fc.cfg.TotalBanks), fc.rng)

			probeFailed := false
			for loc := 0; loc < int(fc.cfg.NumDramLocationsPerMapping); loc++ {
				if loc > 0 {
					mapper.ShiftMapping(1+fc.rng.Intn(32), nil)
					warmUp(fc, mapper, 64*time.Millisecond)
				}
				if err := probeMapping(fc, pattern, mapper, params); err != nil {
					logger.Errorf("probe %s: %v", mapperID, err)
					probeFailed = true
					break
				}
			}
			if probeFailed {
				continue
			}

			flips := mapper.TotalBitFlips()
			patternFlips += flips
			if flips > 0 {
				pattern.AddressMappings = append(pattern.AddressMappings, mapper)
				if flips > bestFlips {
					bestFlips = flips
					bestPattern = pattern
					bestMapper = mapper
				}
			}
		}

		if patternFlips > 0 {
			patterns = append(patterns, pattern)
			logger.Highlightf("pattern %s: %d total bit flip(s) across %d probes", instanceID, patternFlips, opts.probes)
		}
		patternCount++

		if patternCount%100 == 0 {
			diffRow := uintptr(fc.mc.ToVirt(DRAMAddr{Row: fc.rowCount / 2}, fc.mem.BaseAddr()))
			if acts, err := fc.analyzer.CountActsPerTrefi(fc.jitter, fc.mem.BaseAddr(), diffRow); err == nil {
				fc.actsPerTrefi = int(acts)
				logger.Infof("re-measured acts-per-tREFI: %d", fc.actsPerTrefi)
			}
		}
	}

	if err := WriteSummary("fuzz-summary.json", SummaryMetadata{
		Start:        start,
		End:          time.Now(),
		NumPatterns:  len(patterns),
		MemoryConfig: cfg.Name,
		Name:         cfg.Name,
		ConfigPath:   cfg.ConfigPath,
	}, patterns); err != nil {
		logger.Errorf("writing summary: %v", err)
	}

	if opts.sweeping && bestPattern != nil && bestMapper != nil {
		logger.Infof("sweeping best pattern %s across the arena", bestPattern.InstanceID)
		if err := sweepMapping(fc, bestPattern, bestMapper, fc.mem.Size()); err != nil {
			logger.Errorf("sweep: %v", err)
		}
	}

	logger.Infof("run complete: %d effective pattern(s) in %s", len(patterns), time.Since(start))
	return nil
}

// runGenerateOnly builds n patterns without hammering, for inspecting
// the pattern builder's output (the original tool's -g/--generate-patterns
// mode).
func runGenerateOnly(logger *Logger, cfg *EccsmithConfig, n int) error {
	rng := rand.New(rand.NewSource(1))
	var patterns []*HammeringPattern
	for i := 0; i < n; i++ {
		params := RandomFuzzingParameterSet(rng)
		p := BuildPattern(fmt.Sprintf("gen%04d", i), params, rng)
		patterns = append(patterns, p)
		logger.Infof("generated pattern %s: base_period=%d total_acts=%d aaps=%d",
			p.InstanceID, p.BasePeriod, p.TotalActivations, len(p.AggAccessPatterns))
	}
	return WriteSummary("fuzz-summary.json", SummaryMetadata{
		Start:       time.Now(),
		End:         time.Now(),
		NumPatterns: len(patterns),
		Name:        cfg.Name,
		ConfigPath:  cfg.ConfigPath,
	}, patterns)
}

func setupFuzzContext(logger *Logger, cfg *EccsmithConfig) (*fuzzContext, error) {
	mc := BuildMemConfiguration(cfg)
	mem, err := AllocateMemory(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("fuzzer: %w", err)
	}
	mem.Initialize(DataOnes, 1)

	rowCount := 1 << uint(len(cfg.RowBits))
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	jitter := NewCodeJitter()
	analyzer := NewDramAnalyzer(mc, mem.BaseAddr(), rowCount, int(cfg.TotalBanks), rng)

	// Same bank (0) as the arena base, half-way across the rows.
	diffRow := uintptr(mc.ToVirt(DRAMAddr{Row: rowCount / 2}, mem.BaseAddr()))
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = MeasureThreshold(jitter, mem.BaseAddr(), diffRow, mem.BaseAddr()+8, int(cfg.DramaRounds))
	}
	analyzer.SetThreshold(threshold)

	actsPerTrefi := int(cfg.ActsPerTrefi)
	if actsPerTrefi == 0 {
		measured, err := analyzer.CountActsPerTrefi(jitter, mem.BaseAddr(), diffRow)
		if err != nil {
			logger.Errorf("acts-per-tREFI measurement failed, falling back to a conservative default: %v", err)
			actsPerTrefi = 100
		} else {
			actsPerTrefi = int(measured)
		}
	}

	ras, err := NewRasObserver(cfg.RasDBPath)
	if err != nil {
		logger.Errorf("RAS observer unavailable, corrected-flip counts will read zero: %v", err)
		ras = nil
	}

	return &fuzzContext{
		logger: logger, cfg: cfg, mc: mc, mem: mem, analyzer: analyzer, jitter: jitter,
		ras: ras, rng: rng, actsPerTrefi: actsPerTrefi, threshold: threshold, rowCount: rowCount,
	}, nil
}

func shuffleAAPs(aaps []AggressorAccessPattern, rng *rand.Rand) {
	rng.Shuffle(len(aaps), func(i, j int) { aaps[i], aaps[j] = aaps[j], aaps[i] })
}

// probeMapping maps, jits, executes, and scans one mapper, and folds in
// any newly corrected flips read from the RAS store.
func probeMapping(fc *fuzzContext, pattern *HammeringPattern, mapper *PatternAddressMapper, params FuzzingParameterSet) error {
	accesses := mapper.ExportPattern(pattern)
	syncAggs := lastDistinctAddresses(accesses, params.NumSyncAggs)

	program := fc.jitter.BuildHammeringProgram(hammerProgram{
		Accesses:       accesses,
		ActsPerTrefi:   fc.actsPerTrefi,
		Flushing:       params.Flushing,
		Fencing:        params.Fencing,
		SyncEachRef:    params.SyncEachRef,
		SyncAggressors: syncAggs,
		Threshold:      fc.threshold,
		TotalActs:      pattern.TotalActivations,
		BasePeriod:     pattern.BasePeriod,
	})

	if err := fc.jitter.Hammer(program); err != nil {
		return fmt.Errorf("hammer: %w", err)
	}

	flips := fc.mem.CheckMemory(fc.mc, mapper, DataOnes, 1, false)
	mapper.RecordBitFlips(flips)
	for _, f := range flips {
		fc.logger.BitFlip(f)
	}

	if fc.ras != nil {
		corrected, err := fc.ras.FetchNewCorrections(context.Background())
		if err != nil {
			fc.logger.Errorf("RAS poll failed: %v", err)
		} else {
			mapper.CorrectedBitFlips += corrected
			fc.logger.CorrectedBitFlips(corrected)
		}
	}
	return nil
}

func warmUp(fc *fuzzContext, mapper *PatternAddressMapper, d time.Duration) {
	rows := mapper.GetRandomNonaccessedRows(4, fc.rng)
	deadline := time.Now().Add(d)
	var sink byte
	for time.Now().Before(deadline) {
		for _, r := range rows {
			ptr := (*byte)(fc.mc.ToVirt(r, fc.mem.BaseAddr()))
			sink ^= *ptr
		}
	}
	runtime.KeepAlive(sink)
}

// sweepMapping repeats hammering+scanning at successive row offsets
// across a wider memory area, reusing the same pattern and mapping
// shape, shifting only the mapping's absolute position each round.
func sweepMapping(fc *fuzzContext, pattern *HammeringPattern, mapper *PatternAddressMapper, areaSize uint64) error {
	span := pattern.TotalActivations
	steps := int(areaSize) / (span * 8)
	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := probeMapping(fc, pattern, mapper, RandomFuzzingParameterSet(fc.rng)); err != nil {
			return err
		}
		mapper.ShiftMapping(span, nil)
	}
	return nil
}

// lastDistinctAddresses returns the last n distinct addresses appearing
// in accesses, most recent first — the sync aggressors used
// by the preamble and per-tREFI sync loops (spec §4.6: "the last
// num_aggs_for_sync distinct addresses of accesses").
func lastDistinctAddresses(accesses []unsafe.Pointer, n int) []unsafe.Pointer {
	seen := make(map[unsafe.Pointer]bool)
	var out []unsafe.Pointer
	for i := len(accesses) - 1; i >= 0 && len(out) < n; i-- {
		a := accesses[i]
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
