// Package dedupe tracks applied record ids so each accepted rating is
// folded into subject statistics at most once, regardless of commit
// races or caller retries.
package dedupe

import (
	"context"
	"sync"
)

// Tracker records applied record ids for at-most-once application.
type Tracker interface {
	// SeenAndRecord atomically checks if id was applied and records it if
	// not. Returns true if id was already recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id, allowing a retry. Use only when an id was
	// recorded but the apply itself failed.
	Unrecord(ctx context.Context, id string)

	// Size returns the current number of tracked ids.
	Size() int64
}

// inMemoryTracker implements Tracker with a map plus a FIFO ring for
// bounded eviction. maxSize <= 0 disables eviction.
type inMemoryTracker struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // FIFO eviction order; nil in unbounded mode
	head    int      // next eviction position in order
	maxSize int
}

// NewInMemoryTracker creates a tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		maxSize: 50000, // default max size
	}

	// Apply all options
	for _, opt := range opts {
		opt(t)
	}

	t.seen = make(map[string]struct{})
	if t.maxSize > 0 {
		t.order = make([]string, 0, t.maxSize)
	}

	return t
}

// SeenAndRecord atomically checks if id was applied and records it if not.
func (t *inMemoryTracker) SeenAndRecord(ctx context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.seen[id]; exists {
		return true
	}

	if t.maxSize > 0 && len(t.seen) >= t.maxSize {
		t.evictOldest()
	}

	t.seen[id] = struct{}{}
	if t.maxSize > 0 {
		t.order = append(t.order, id)
	}
	return false
}

// Unrecord removes an id from the applied set.
func (t *inMemoryTracker) Unrecord(ctx context.Context, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, id)
	// The stale slot in the eviction ring is skipped when its turn comes.
}

// evictOldest drops the oldest still-tracked id. Must be called with
// t.mu held.
func (t *inMemoryTracker) evictOldest() {
	for t.head < len(t.order) {
		id := t.order[t.head]
		t.head++
		if _, exists := t.seen[id]; exists {
			delete(t.seen, id)
			break
		}
	}
	// Compact once the consumed prefix dominates the ring.
	if t.head > len(t.order)/2 {
		t.order = append(t.order[:0], t.order[t.head:]...)
		t.head = 0
	}
}

// Size returns the current number of tracked ids.
func (t *inMemoryTracker) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.seen))
}
