package keystate

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeKeys simulates physical key state behind a mutex.
type fakeKeys struct {
	mu   sync.Mutex
	down map[uint16]bool
}

func newFakeKeys(pressed ...uint16) *fakeKeys {
	f := &fakeKeys{down: make(map[uint16]bool)}
	for _, k := range pressed {
		f.down[k] = true
	}
	return f
}

func (f *fakeKeys) release(k uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.down, k)
}

func (f *fakeKeys) anyDown(rawcodes []uint16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range rawcodes {
		if f.down[k] {
			return true
		}
	}
	return false
}

func TestWatchReleaseFiresAfterFullRelease(t *testing.T) {
	keys := newFakeKeys(162, 82) // ctrl + r held
	w := NewWatcher(keys.anyDown, WithInterval(5*time.Millisecond))

	released := make(chan struct{})
	combo := [][]uint16{{162, 163}, {82}}
	w.WatchRelease(context.Background(), combo, func() { close(released) })

	// Releasing only the primary key is not a full release.
	keys.release(82)
	select {
	case <-released:
		t.Fatal("Fired while ctrl still held")
	case <-time.After(50 * time.Millisecond):
	}

	keys.release(162)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Never fired after full release")
	}
}

func TestWatchReleaseTimeoutForcesStop(t *testing.T) {
	keys := newFakeKeys(82) // never released
	w := NewWatcher(keys.anyDown,
		WithInterval(5*time.Millisecond),
		WithTimeout(30*time.Millisecond))

	released := make(chan struct{})
	w.WatchRelease(context.Background(), [][]uint16{{82}}, func() { close(released) })

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Timeout did not force the stop callback")
	}
}

func TestWatchReleaseCancelSuppressesCallback(t *testing.T) {
	keys := newFakeKeys(82)
	w := NewWatcher(keys.anyDown,
		WithInterval(5*time.Millisecond),
		WithTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	fired := false
	w.WatchRelease(ctx, [][]uint16{{82}}, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	cancel()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("Callback fired after cancellation")
	}
}

func TestWatchReleaseAlternativeRawcodes(t *testing.T) {
	keys := newFakeKeys(163) // right ctrl
	w := NewWatcher(keys.anyDown, WithInterval(5*time.Millisecond))

	released := make(chan struct{})
	w.WatchRelease(context.Background(), [][]uint16{{162, 163}}, func() { close(released) })

	select {
	case <-released:
		t.Fatal("Fired while right ctrl held")
	case <-time.After(50 * time.Millisecond):
	}

	keys.release(163)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Never fired after releasing right ctrl")
	}
}
