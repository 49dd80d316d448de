// Package keystate answers "is this key physically held right now" by
// polling the OS key state. The keyboard hook reports presses but its
// release events are unreliable while a capture popup has focus, so
// hold-to-record flows watch for release here instead.
package keystate

import (
	"context"
	"log"
	"time"
)

const (
	// pollInterval balances release latency against CPU cost. 50ms keeps
	// worst-case extra recording under one frame of speech.
	pollInterval = 50 * time.Millisecond

	// watchTimeout bounds a watcher whose process never observes the
	// release (focus stolen, hook wedged). The recording stops either way.
	watchTimeout = 120 * time.Second
)

// KeyStateFunc reports whether any of the given rawcodes is currently down.
// The windows build queries GetAsyncKeyState; tests inject their own.
type KeyStateFunc func(rawcodes []uint16) bool

// Watcher polls until a key combination is fully released, then invokes a
// callback exactly once.
type Watcher struct {
	isDown   KeyStateFunc
	interval time.Duration
	timeout  time.Duration
}

// Option tweaks a Watcher. Only tests shorten the intervals.
type Option func(*Watcher)

func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.timeout = d }
}

// NewWatcher builds a watcher over the given key state source. A nil
// source uses the platform default.
func NewWatcher(isDown KeyStateFunc, opts ...Option) *Watcher {
	if isDown == nil {
		isDown = platformKeyDown
	}
	w := &Watcher{isDown: isDown, interval: pollInterval, timeout: watchTimeout}
	for _, o := range opts {
		o(w)
	}
	return w
}

// WatchRelease polls until every key group in combo is released, then calls
// onRelease. A combo is held while ANY group still reports down; releasing
// the primary key alone is not enough, all of them must go up. Returns
// immediately; the polling runs on its own goroutine until release, timeout
// or ctx cancellation. onRelease fires on release and on timeout, never on
// cancellation.
func (w *Watcher) WatchRelease(ctx context.Context, combo [][]uint16, onRelease func()) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		deadline := time.NewTimer(w.timeout)
		defer deadline.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				log.Printf("keystate: release watch timed out after %v, forcing stop", w.timeout)
				onRelease()
				return
			case <-ticker.C:
				if !w.anyDown(combo) {
					onRelease()
					return
				}
			}
		}
	}()
}

func (w *Watcher) anyDown(combo [][]uint16) bool {
	for _, group := range combo {
		if w.isDown(group) {
			return true
		}
	}
	return false
}
