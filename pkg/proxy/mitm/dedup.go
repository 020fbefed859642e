package mitm

import (
	"sync"
	"time"
)

// dedupTracker coalesces identical (method,url) firings within a window, as
// required by §4.7: "a second firing within the window is dropped from the
// pipeline with an internal debug event only."
type dedupTracker struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func newDedupTracker(window time.Duration) *dedupTracker {
	return &dedupTracker{window: window, seen: make(map[string]time.Time)}
}

// shouldDrop reports whether key was already seen within the dedup window,
// and records the current firing regardless.
func (d *dedupTracker) shouldDrop(key string) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return true
	}
	d.seen[key] = now
	d.evictOlderThanLocked(now)
	return false
}

func (d *dedupTracker) evictOlderThanLocked(now time.Time) {
	for k, t := range d.seen {
		if now.Sub(t) > d.window*4 {
			delete(d.seen, k)
		}
	}
}
