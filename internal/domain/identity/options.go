package identity

import "time"

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithTTL sets the validity window of issued identities.
func WithTTL(ttl time.Duration) Option {
	return func(g *Generator) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithCollectors replaces the collector set.
func WithCollectors(collectors ...Collector) Option {
	return func(g *Generator) {
		if len(collectors) > 0 {
			g.collectors = collectors
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}
