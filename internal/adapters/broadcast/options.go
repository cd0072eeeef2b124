package broadcast

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithQueueSize bounds the broadcast queue.
func WithQueueSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.queueSize = size
		}
	}
}

// WithWorkers sets the number of dispatcher goroutines.
func WithWorkers(workers int) Option {
	return func(h *Hub) {
		if workers > 0 {
			h.workers = workers
		}
	}
}

// WithSubscriberBuffer sets the default per-subscriber channel buffer.
func WithSubscriberBuffer(buffer int) Option {
	return func(h *Hub) {
		if buffer > 0 {
			h.subscriberBuffer = buffer
		}
	}
}
