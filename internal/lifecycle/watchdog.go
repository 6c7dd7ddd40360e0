package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// WatchdogInterval is how often the parent PID is polled.
const WatchdogInterval = 10 * time.Second

// MissedChecksThreshold is how many consecutive missing-parent checks
// trigger a shutdown.
const MissedChecksThreshold = 3

// Watchdog polls the supervising parent process and calls onParentGone
// once it has been missing for MissedChecksThreshold consecutive
// checks in a row, guarding against a parent that crashed without
// giving this engine a chance to shut down cleanly.
type Watchdog struct {
	parentPID    int
	interval     time.Duration
	threshold    int
	onParentGone func()
	log          *slog.Logger
}

// NewWatchdog builds a Watchdog for parentPID using the package
// defaults for interval and threshold.
func NewWatchdog(parentPID int, onParentGone func(), log *slog.Logger) *Watchdog {
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{
		parentPID:    parentPID,
		interval:     WatchdogInterval,
		threshold:    MissedChecksThreshold,
		onParentGone: onParentGone,
		log:          log,
	}
}

// Run blocks, polling until ctx is cancelled or the parent is judged
// gone, in which case onParentGone is invoked exactly once.
func (w *Watchdog) Run(ctx context.Context) {
	if w.parentPID <= 0 {
		// No supervising process to watch (e.g. run directly in a
		// foreground terminal); nothing to do.
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if processAlive(w.parentPID) {
				missed = 0
				continue
			}
			missed++
			w.log.Warn("parent process missing", "parent_pid", w.parentPID, "consecutive_misses", missed)
			if missed >= w.threshold {
				w.log.Error("parent process gone, triggering shutdown", "parent_pid", w.parentPID)
				w.onParentGone()
				return
			}
		}
	}
}

// currentParentPID returns the PID of the process that spawned us, for
// callers that don't already track it explicitly (e.g. cmd/engined
// reads os.Getppid() once at startup and stores it in the lockfile).
func currentParentPID() int {
	return os.Getppid()
}
