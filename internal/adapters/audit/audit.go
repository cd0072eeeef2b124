// Package audit records security events for later review and exposes
// them to monitoring subscribers. Events never reach end users.
package audit

import (
	"context"
	"sync"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/pkg/logger"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Default sink configuration constants.
const (
	defaultSubscriberBuffer = 64
)

// Sink accepts security events. Every event is structured-logged
// synchronously; a flag is never accepted without its log line. Fan-out
// to subscribers is best-effort and non-blocking.
type Sink struct {
	log logger.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool

	subscriberBuffer int
}

type subscriber struct {
	name string
	ch   chan model.SecurityEvent
}

// NewSink creates an audit sink.
func NewSink(opts ...Option) *Sink {
	s := &Sink{
		log:              logger.Get().Named("audit"),
		subscribers:      make(map[*subscriber]struct{}),
		subscriberBuffer: defaultSubscriberBuffer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Emit logs the event and notifies subscribers. Safe to call from the
// validation hot path; a full subscriber buffer drops that delivery
// only, never the log line.
func (s *Sink) Emit(ctx context.Context, ev model.SecurityEvent) {
	s.log.Warn(ctx, "security event",
		logger.String("subject", ev.SubjectID),
		logger.String("identity", ev.Identity),
		logger.String("reason", ev.Reason),
		logger.String("client", ev.Client.Description),
		logger.String("remote_addr", ev.Client.RemoteAddr),
		logger.Time("at", ev.At),
	)
	metrics.RecordSecurityEvent()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	for sub := range s.subscribers {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a named security-event consumer.
func (s *Sink) Subscribe(name string, buffer int) (<-chan model.SecurityEvent, func()) {
	if buffer <= 0 {
		buffer = s.subscriberBuffer
	}
	sub := &subscriber{name: name, ch: make(chan model.SecurityEvent, buffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[sub]; ok {
				delete(s.subscribers, sub)
				close(sub.ch)
			}
			s.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Close detaches and closes all subscriber channels.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subscribers {
		delete(s.subscribers, sub)
		close(sub.ch)
	}
	return nil
}
