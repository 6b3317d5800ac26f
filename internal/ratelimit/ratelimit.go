// Package ratelimit implements the per-client sliding-window message cap
// described in spec §4.8 and §5: at most N messages per rolling window,
// applied uniformly across message types (spec §9 explicitly keeps this
// uniform rather than adding per-type quotas).
package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window counter over a single time.Duration window:
// a list of recent timestamps rather than a token bucket, since the cap
// is a hard per-second ceiling, not a burst allowance.
type Window struct {
	mu       sync.Mutex
	limit    int
	duration time.Duration
	hits     []time.Time
}

// New returns a Window permitting at most limit events per duration.
func New(limit int, duration time.Duration) *Window {
	return &Window{limit: limit, duration: duration}
}

// Allow records one event at now and reports whether it falls within
// the limit. Expired entries are pruned from the front of the window on
// every call, so memory never grows past limit entries.
func (w *Window) Allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.duration)
	i := 0
	for ; i < len(w.hits); i++ {
		if w.hits[i].After(cutoff) {
			break
		}
	}
	w.hits = w.hits[i:]

	if len(w.hits) >= w.limit {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}
