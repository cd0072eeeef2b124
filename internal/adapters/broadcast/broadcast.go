// Package broadcast fans statistics snapshots out to subscribers
// without blocking the submission accept path.
//
// Publish enqueues onto a bounded in-memory queue; dispatcher workers
// drain it and deliver to every subscriber. Delivery is at-least-once
// per running subscriber and every payload is a full replacement
// snapshot, so consumption is idempotent.
package broadcast

import (
	"context"
	"sync"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
	"github.com/deborabastos/esplanada-ratings/pkg/metrics"
)

// Default broadcaster configuration constants.
const (
	defaultQueueSize        = 1024
	defaultWorkers          = 2
	defaultSubscriberBuffer = 16
)

// Update is one full-snapshot statistics change notification.
type Update struct {
	SubjectID  string           `json:"subject_id"`
	Statistics model.Statistics `json:"statistics"`
}

// Broadcaster publishes statistics updates to zero or more subscribers.
type Broadcaster interface {
	// Publish enqueues an update without blocking. Returns false when
	// the queue is full or the broadcaster is closed; the accepted
	// rating is unaffected either way.
	Publish(ctx context.Context, u Update) bool

	// Subscribe registers a named subscriber and returns its channel
	// plus a cancel function. A subscriber whose buffer is full misses
	// deliveries; other subscribers are unaffected.
	Subscribe(name string, buffer int) (<-chan Update, func())

	// Len returns the current queue depth.
	Len() int

	// SubscriberCount returns the number of registered subscribers.
	SubscriberCount() int

	// Close stops the dispatchers and closes all subscriber channels.
	Close() error
}

// subscriber is one registered consumer.
type subscriber struct {
	name string
	ch   chan Update
}

// Hub implements Broadcaster with a buffered queue and a dispatcher
// worker pool.
type Hub struct {
	queue chan Update

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool

	queueSize        int
	workers          int
	subscriberBuffer int

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewHub creates a broadcaster with configuration options. Start must
// be called before updates flow.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers:      make(map[*subscriber]struct{}),
		queueSize:        defaultQueueSize,
		workers:          defaultWorkers,
		subscriberBuffer: defaultSubscriberBuffer,
		stop:             make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(h)
	}

	h.queue = make(chan Update, h.queueSize)

	return h
}

// Start launches the dispatcher workers.
func (h *Hub) Start(ctx context.Context) {
	for i := 0; i < h.workers; i++ {
		h.wg.Add(1)
		go h.dispatch(ctx)
	}
}

// Publish enqueues an update without blocking the caller.
func (h *Hub) Publish(ctx context.Context, u Update) bool {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		metrics.RecordBroadcastDropped("closed")
		return false
	}

	select {
	case h.queue <- u:
		metrics.UpdateBroadcastQueueSize(len(h.queue))
		return true
	case <-ctx.Done():
		metrics.RecordBroadcastDropped("context_cancelled")
		return false
	default:
		metrics.RecordBroadcastDropped("queue_full")
		return false
	}
}

// dispatch drains the queue and fans out to all subscribers.
func (h *Hub) dispatch(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case u, ok := <-h.queue:
			if !ok {
				return
			}
			h.fanOut(u)
			metrics.UpdateBroadcastQueueSize(len(h.queue))
		}
	}
}

// fanOut delivers one update to every subscriber. A full subscriber
// buffer drops that delivery only; the rest still receive it.
func (h *Hub) fanOut(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.ch <- u:
			metrics.RecordBroadcastPublished()
		default:
			metrics.RecordBroadcastDropped("subscriber_full")
		}
	}
}

// Subscribe registers a named subscriber.
func (h *Hub) Subscribe(name string, buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = h.subscriberBuffer
	}
	sub := &subscriber{name: name, ch: make(chan Update, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.UpdateBroadcastSubscribers(count)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.ch)
			}
			count := len(h.subscribers)
			h.mu.Unlock()
			metrics.UpdateBroadcastSubscribers(count)
		})
	}
	return sub.ch, cancel
}

// Len returns the current queue depth.
func (h *Hub) Len() int {
	return len(h.queue)
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close stops the dispatchers and closes all subscriber channels.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.stop)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
	metrics.UpdateBroadcastSubscribers(0)
	return nil
}
