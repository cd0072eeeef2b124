package stats

import (
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/dedupe"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTrendWindow sets how many recent scores feed the trend comparison.
func WithTrendWindow(window int) Option {
	return func(e *Engine) {
		if window > 0 {
			e.trendWindow = window
		}
	}
}

// WithTrendMargin sets the mean delta beyond which a trend is not stable.
func WithTrendMargin(margin float64) Option {
	return func(e *Engine) {
		if margin > 0 {
			e.trendMargin = margin
		}
	}
}

// WithConfidenceTarget sets the rating count at which confidence
// saturates at 1.0.
func WithConfidenceTarget(target int) Option {
	return func(e *Engine) {
		if target > 0 {
			e.confidenceTarget = target
		}
	}
}

// WithAppliedTracker replaces the commit idempotency tracker.
func WithAppliedTracker(tracker dedupe.Tracker) Option {
	return func(e *Engine) {
		if tracker != nil {
			e.applied = tracker
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
