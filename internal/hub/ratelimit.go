package hub

import (
	"time"
)

// Rate limit defaults: at most 60 chat messages per identity per minute.
const (
	DefaultChatLimit  = 60
	DefaultChatWindow = time.Minute
)

// SlidingWindow is a per-key sliding-window counter. The check happens
// before admission: a key already holding `limit` in-window timestamps is
// rejected and the rejected attempt is NOT recorded. Entries are pruned
// lazily on each check; idle keys are never garbage collected.
//
// Not safe for concurrent use; the hub serializes access under its lock.
type SlidingWindow struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	entries map[string][]time.Time
}

// NewSlidingWindow creates a limiter admitting `limit` events per key per
// `window`.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string][]time.Time),
	}
}

// Allow reports whether one more event for key fits in the window, and
// records it if so.
func (l *SlidingWindow) Allow(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.entries[key] = kept
		return false
	}

	l.entries[key] = append(kept, now)
	return true
}
