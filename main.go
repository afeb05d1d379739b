package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"
)

const versionString = "eccsmith 1.0.0"

// VerboseMode mirrors the teacher's own CLI flag pattern: a single
// package-level boolean set once in main from -v.
var VerboseMode bool

func main() {
	var (
		configPath       = flag.String("c", "", "path to DRAM config JSON (required)")
		runtimeHours     = flag.Float64("t", 3, "fuzzing runtime limit in hours")
		logfile          = flag.String("l", "run.log", "log file path")
		probes           = flag.Int("p", 3, "address mappings probed per pattern")
		sweeping         = flag.Bool("w", false, "sweep the best pattern across a wider area after fuzzing")
		generatePatterns = flag.Int("g", 0, "generate N patterns only, skip hammering, and exit")
		loadJSON         = flag.String("j", "", "load a prior fuzz-summary.json instead of fuzzing")
		replayPatterns   = flag.String("y", "", "comma-separated pattern instance ids to replay (with -j)")
		verbose          = flag.Bool("v", false, "verbose logging")
		version          = flag.Bool("V", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: frequency-based Rowhammer fuzzer\n\n", versionString)
		fmt.Fprintf(os.Stderr, "Usage: %s -c config.json [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Println(versionString)
		return
	}
	VerboseMode = *verbose

	if *configPath == "" && *loadJSON == "" {
		fmt.Fprintln(os.Stderr, "error: -c (config) is required unless -j (load-json) is given")
		flag.Usage()
		os.Exit(1)
	}

	logger, err := NewLogger(*logfile, VerboseMode)
	if err != nil {
		log.Fatalf("eccsmith: cannot open log file: %v", err)
	}
	defer logger.Close()

	runtime.LockOSThread()
	if err := boostPriority(); err != nil {
		logger.Errorf("could not raise process priority: %v", err)
	}

	if *loadJSON != "" {
		summary, err := LoadSummary(*loadJSON)
		if err != nil {
			logger.Errorf("loading summary %q: %v", *loadJSON, err)
			os.Exit(1)
		}
		cfg, err := LoadConfig(summary.Metadata.ConfigPath)
		if err != nil {
			logger.Errorf("reloading config %q: %v", summary.Metadata.ConfigPath, err)
			os.Exit(1)
		}
		cfg.ConfigPath = summary.Metadata.ConfigPath
		if err := runReplay(logger, cfg, summary, *replayPatterns, *sweeping); err != nil {
			logger.Errorf("replay failed: %v", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Errorf("loading config %q: %v", *configPath, err)
		os.Exit(1)
	}
	cfg.ConfigPath = *configPath

	if *generatePatterns > 0 {
		if err := runGenerateOnly(logger, cfg, *generatePatterns); err != nil {
			logger.Errorf("pattern generation failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := runFuzz(logger, cfg, fuzzRunOptions{
		runtimeLimit: time.Duration(*runtimeHours * float64(time.Hour)),
		probes:       *probes,
		sweeping:     *sweeping,
	}); err != nil {
		logger.Errorf("fuzzing run failed: %v", err)
		os.Exit(1)
	}
}

// parseIDList splits a comma-separated list of pattern instance ids,
// tolerating an empty string (meaning "let the caller pick the default").
func parseIDList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
