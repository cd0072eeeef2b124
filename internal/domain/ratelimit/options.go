package ratelimit

import "time"

// Option applies a configuration option to the in-memory limiter.
type Option func(*inMemoryLimiter)

// WithLimit sets the per-identity submission cap within one window.
func WithLimit(limit int) Option {
	return func(l *inMemoryLimiter) {
		if limit > 0 {
			l.limit = limit
		}
	}
}

// WithWindow sets the sliding-window length.
func WithWindow(window time.Duration) Option {
	return func(l *inMemoryLimiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithBlockDuration sets how long an offender stays blocked after
// exceeding a threshold.
func WithBlockDuration(block time.Duration) Option {
	return func(l *inMemoryLimiter) {
		if block > 0 {
			l.block = block
		}
	}
}

// WithGlobalMultiplier scales the per-identity limit into the global
// per-action ceiling.
func WithGlobalMultiplier(multiplier int) Option {
	return func(l *inMemoryLimiter) {
		if multiplier > 0 {
			l.globalMultiplier = multiplier
		}
	}
}

// WithGCThreshold sets the entry count beyond which stale counters are
// opportunistically collected during checks.
func WithGCThreshold(threshold int) Option {
	return func(l *inMemoryLimiter) {
		if threshold > 0 {
			l.gcThreshold = threshold
		}
	}
}
