package provider

import (
	"context"
	"sync/atomic"
	"time"
)

// watchdog cancels an in-flight request when no bytes arrive within the idle
// window. Reset is called after every successful read.
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
	fired   atomic.Bool
}

func newWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	if timeout <= 0 {
		return w
	}
	w.timer = time.AfterFunc(timeout, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

func (w *watchdog) Reset() {
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Fired reports whether the idle window elapsed. Used to distinguish an idle
// cancellation from a caller cancellation.
func (w *watchdog) Fired() bool {
	return w.fired.Load()
}
