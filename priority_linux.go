//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// boostPriority raises the current process to the highest scheduling
// priority, matching the original tool's setpriority(PRIO_PROCESS, 0,
// -20) call. Failure (typically insufficient privilege) is reported but
// never fatal — the fuzzer still functions, just with noisier timing.
func boostPriority() error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		return fmt.Errorf("priority: setpriority: %w", err)
	}
	return nil
}
