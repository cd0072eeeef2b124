package audit

import "github.com/deborabastos/esplanada-ratings/pkg/logger"

// Option configures the sink.
type Option func(*Sink)

// WithLogger sets the logger used for security events.
func WithLogger(l logger.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSubscriberBuffer sets the default buffer for subscriber channels.
func WithSubscriberBuffer(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.subscriberBuffer = n
		}
	}
}
