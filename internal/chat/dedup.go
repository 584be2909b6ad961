package chat

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupWindow is the trailing interval during which a previously
// accepted message identifier is suppressed as a duplicate.
const DefaultDedupWindow = time.Minute

// Window tracks recently accepted message identifiers with timed expiry.
// Lookups expire lazily; Run adds a background sweep so identifiers that are
// never seen again do not accumulate.
type Window struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[string]time.Time // identifier -> expiry deadline
}

// NewWindow creates a dedup window with the given suppression interval.
// A non-positive ttl falls back to DefaultDedupWindow; a nil clock falls back
// to the system clock.
func NewWindow(ttl time.Duration, clock Clock) *Window {
	if ttl <= 0 {
		ttl = DefaultDedupWindow
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Window{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]time.Time),
	}
}

// Accept reports whether id is new within the window. The first sighting is
// recorded with expiry now+ttl and returns true; any repeat returns false
// until the entry expires, at which point the id is treated as new again.
func (w *Window) Accept(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	if deadline, ok := w.entries[id]; ok && now.Before(deadline) {
		return false
	}
	w.entries[id] = now.Add(w.ttl)
	return true
}

// Sweep removes expired entries and returns how many were dropped.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	removed := 0
	for id, deadline := range w.entries {
		if !now.Before(deadline) {
			delete(w.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Run sweeps expired entries on the given interval until ctx is canceled.
// A non-positive interval defaults to the window's ttl.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = w.ttl
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}
