// Package ratelimit implements the sliding-window submission-frequency
// guard, per identity and per global action ceiling.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default limiter configuration constants.
const (
	defaultLimit            = 10
	defaultWindow           = time.Hour
	defaultBlock            = 5 * time.Minute
	defaultGlobalMultiplier = 10
	defaultGCThreshold      = 10000

	// globalKey is the reserved key for the per-action global ceiling.
	globalKey = "\x00global"
)

// Scope identifies which ceiling produced a denial.
const (
	ScopeIdentity = "identity"
	ScopeGlobal   = "global"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // positive on denial
	Remaining  int           // identity-scope allowance left in the window
	Scope      string        // set on denial: ScopeIdentity or ScopeGlobal
}

// Limiter checks and records submission attempts. This is a probabilistic
// defense: O(1) amortized per check, state is ephemeral and resets on
// restart.
type Limiter interface {
	// CheckAndRecord atomically evaluates the (key, action) and global
	// counters and records the attempt when allowed. A cancelled context
	// denies (fail closed).
	CheckAndRecord(ctx context.Context, key, action string, now time.Time) Decision

	// Size returns the number of tracked counter entries.
	Size() int
}

// entry is one sliding-window counter. Window and block expiry are both
// evaluated lazily at check time; no background sweep.
type entry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// inMemoryLimiter implements Limiter with a single mutex owning all
// counter state (single-writer-per-key).
type inMemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	limit            int
	window           time.Duration
	block            time.Duration
	globalMultiplier int
	gcThreshold      int
}

// NewInMemoryLimiter creates a limiter with configuration options.
func NewInMemoryLimiter(opts ...Option) Limiter {
	l := &inMemoryLimiter{
		entries:          make(map[string]*entry),
		limit:            defaultLimit,
		window:           defaultWindow,
		block:            defaultBlock,
		globalMultiplier: defaultGlobalMultiplier,
		gcThreshold:      defaultGCThreshold,
	}

	// Apply all options
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// CheckAndRecord atomically evaluates both ceilings and records the
// attempt only when both allow it, so a denial leaves no partial counts.
func (l *inMemoryLimiter) CheckAndRecord(ctx context.Context, key, action string, now time.Time) Decision {
	select {
	case <-ctx.Done():
		return Decision{Allowed: false, RetryAfter: l.block, Scope: ScopeIdentity}
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) > l.gcThreshold {
		l.collect(now)
	}

	global := l.peek(action+"|"+globalKey, now)
	if d, denied := l.deny(global, l.limit*l.globalMultiplier, now, ScopeGlobal); denied {
		return d
	}

	ident := l.peek(action+"|"+key, now)
	if d, denied := l.deny(ident, l.limit, now, ScopeIdentity); denied {
		return d
	}

	global.count++
	ident.count++
	return Decision{Allowed: true, Remaining: l.limit - ident.count}
}

// peek fetches or creates the entry for k, lazily resetting an expired
// window. Must be called with l.mu held.
func (l *inMemoryLimiter) peek(k string, now time.Time) *entry {
	e, ok := l.entries[k]
	if !ok {
		e = &entry{windowStart: now}
		l.entries[k] = e
		return e
	}
	if now.Sub(e.windowStart) >= l.window {
		e.count = 0
		e.windowStart = now
	}
	return e
}

// deny evaluates one entry against its limit, entering or extending the
// blocked state on an excess attempt. Must be called with l.mu held.
func (l *inMemoryLimiter) deny(e *entry, limit int, now time.Time, scope string) (Decision, bool) {
	if e.blockedUntil.After(now) {
		return Decision{Allowed: false, RetryAfter: e.blockedUntil.Sub(now), Scope: scope}, true
	}
	if e.count >= limit {
		e.blockedUntil = now.Add(l.block)
		return Decision{Allowed: false, RetryAfter: l.block, Scope: scope}, true
	}
	return Decision{}, false
}

// collect drops entries whose window and block have both lapsed.
// Must be called with l.mu held.
func (l *inMemoryLimiter) collect(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window+l.block && !e.blockedUntil.After(now) {
			delete(l.entries, k)
		}
	}
}

// Size returns the number of tracked counter entries.
func (l *inMemoryLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
