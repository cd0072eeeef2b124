package validate

import "time"

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithCommentMaxLen caps the optional comment length in characters.
func WithCommentMaxLen(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.commentMaxLen = n
		}
	}
}

// WithMaxPhotoRefs caps the number of attached photo references.
func WithMaxPhotoRefs(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxPhotoRefs = n
		}
	}
}

// WithClockSkew tolerates client clocks running ahead by this much.
func WithClockSkew(skew time.Duration) Option {
	return func(p *Pipeline) {
		if skew >= 0 {
			p.clockSkew = skew
		}
	}
}

// WithStalenessWindow rejects submissions older than this at ingestion.
func WithStalenessWindow(window time.Duration) Option {
	return func(p *Pipeline) {
		if window > 0 {
			p.stalenessWindow = window
		}
	}
}

// WithCheckTimeout bounds the rate-limit and duplicate-guard checks.
func WithCheckTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.checkTimeout = timeout
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}
