package lifecycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Given: a watchdog with no parent PID configured
// Then: Run returns immediately without ever calling onParentGone
func TestWatchdog_NoParentPID_IsNoop(t *testing.T) {
	called := false
	w := NewWatchdog(0, func() { called = true }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	assert.False(t, called)
}

// Given: a watchdog whose parent PID is this live process
// Then: Run never fires onParentGone before the context is cancelled
func TestWatchdog_LiveParent_NeverFires(t *testing.T) {
	called := false
	w := NewWatchdog(os.Getpid(), func() { called = true }, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	assert.False(t, called)
}

// Given: a watchdog whose parent PID does not exist
// Then: after threshold consecutive misses, onParentGone fires exactly once
func TestWatchdog_DeadParent_FiresAfterThreshold(t *testing.T) {
	fired := 0
	w := NewWatchdog(4194304, func() { fired++ }, nil)
	w.interval = 5 * time.Millisecond
	w.threshold = 2

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("watchdog did not fire in time")
	}
	assert.Equal(t, 1, fired)
}
