package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Logger is a thin leveled wrapper around the standard log package,
// matching the teacher's direct log.Printf/log.Fatalf style while
// covering the shape of the original tool's log_info/log_error/
// log_highlight/log_bitflip surface without resorting to a package-level
// singleton: callers hold an explicit *Logger.
type Logger struct {
	file    *os.File
	std     *log.Logger
	stdout  bool
	start   time.Time
	verbose bool
}

// NewLogger opens path for appending (creating it if necessary) and
// returns a Logger that always writes there, additionally echoing to
// stdout when verbose is true.
func NewLogger(path string, verbose bool) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logx: open %q: %w", path, err)
	}
	var w io.Writer = f
	if verbose {
		w = io.MultiWriter(f, os.Stdout)
	}
	return &Logger{
		file:    f,
		std:     log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		stdout:  verbose,
		start:   time.Now(),
		verbose: verbose,
	}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("[INFO] "+format, args...)
}

func (l *Logger) Highlightf(format string, args ...any) {
	l.std.Printf("[====] "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("[FAIL] "+format, args...)
}

func (l *Logger) Dataf(format string, args ...any) {
	l.std.Printf("[DATA] "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.verbose {
		l.std.Printf("[DBUG] "+format, args...)
	}
}

// BitFlip logs a single observed memory corruption.
func (l *Logger) BitFlip(f BitFlip) {
	l.std.Printf("[FLIP] addr=%#x row=%d bit=%d page_off=%#x expected=%#02x actual=%#02x t=%s elapsed=%s",
		f.Address, f.Row, f.BitIndex, f.PageOffset, f.ExpectedByte, f.ActualByte, f.ObservedAt.Format(time.RFC3339Nano), f.ObservedAt.Sub(l.start))
}

// CorrectedBitFlips logs a delta of ECC-corrected flips observed via the
// RAS event store.
func (l *Logger) CorrectedBitFlips(count int) {
	if count > 0 {
		l.std.Printf("[RAS ] %d corrected bit flip(s) since last poll", count)
	}
}

// Elapsed returns wall-clock time since the logger was created, matching
// the original tool's run-relative timestamps.
func (l *Logger) Elapsed() time.Duration {
	return time.Since(l.start)
}
