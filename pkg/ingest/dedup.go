package ingest

import (
	"sync"
	"time"
)

// DedupWindowDefault is the suppression window for OS re-delivery of an
// unchanged notification posting.
const DedupWindowDefault = 8 * time.Second

// dedupMaxEntries bounds the window map; the oldest entries are evicted
// beyond this.
const dedupMaxEntries = 512

// DedupWindow suppresses re-delivery storms for a single physical
// notification posting within a short window. It operates on the OS-level
// per-posting key, independent of business-level bucketing.
type DedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]int64 // eventKey -> lastSeenTime (epoch ms)
}

// NewDedupWindow creates a window with the given span; a non-positive
// span falls back to the default 8s.
func NewDedupWindow(window time.Duration) *DedupWindow {
	if window <= 0 {
		window = DedupWindowDefault
	}
	return &DedupWindow{window: window, seen: make(map[string]int64)}
}

// ShouldSuppress reports whether eventKey was already observed within the
// window. A suppressed hit does not refresh the stored timestamp: a
// still-active key must not keep resetting the window, or slow periodic
// repeats would never surface.
func (d *DedupWindow) ShouldSuppress(eventKey string, now time.Time) bool {
	nowMs := now.UnixMilli()
	windowMs := d.window.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, ts := range d.seen {
		if nowMs-ts >= windowMs {
			delete(d.seen, k)
		}
	}

	if ts, ok := d.seen[eventKey]; ok && nowMs-ts < windowMs {
		return true
	}

	if len(d.seen) >= dedupMaxEntries {
		oldestKey := ""
		oldestTS := int64(0)
		for k, ts := range d.seen {
			if oldestKey == "" || ts < oldestTS {
				oldestKey, oldestTS = k, ts
			}
		}
		delete(d.seen, oldestKey)
	}
	d.seen[eventKey] = nowMs
	return false
}

// Len returns the current number of tracked keys.
func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
