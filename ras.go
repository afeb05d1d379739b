package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// RasObserver polls the OS-maintained machine-check event store
// (rasdaemon's sqlite database) to count ECC-corrected bit flips that
// occurred since the last poll.
type RasObserver struct {
	db               *sql.DB
	totalCorrections int
}

// NewRasObserver opens the RAS database read-only. Opening is best
// effort: a missing or inaccessible database is not fatal to the fuzzer
// (see error handling design), so callers should log and continue rather
// than abort when this returns an error.
func NewRasObserver(path string) (*RasObserver, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ras: open %q: %w", path, err)
	}
	r := &RasObserver{db: db}
	if _, err := r.FetchNewCorrections(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ras: priming baseline: %w", err)
	}
	return r, nil
}

// FetchNewCorrections returns the number of corrected bit flips recorded
// since the previous call, retrying on "database is locked" with a
// 100ms backoff as the original watcher did.
func (r *RasObserver) FetchNewCorrections(ctx context.Context) (int, error) {
	const maxRetries = 5
	var total int
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		row := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mc_event;")
		if err := row.Scan(&total); err != nil {
			lastErr = err
			if strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy") {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return 0, fmt.Errorf("ras: query mc_event: %w", err)
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return 0, fmt.Errorf("ras: query mc_event after retries: %w", lastErr)
	}
	delta := total - r.totalCorrections
	if delta < 0 {
		delta = 0
	}
	r.totalCorrections = total
	return delta, nil
}

func (r *RasObserver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
