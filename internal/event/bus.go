package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MetricsRecorder is an optional interface for recording bus metrics.
type MetricsRecorder interface {
	RecordEventPublished(ctx context.Context, eventType string)
	RecordEventDropped(ctx context.Context, eventType string)
}

// Bus is a bounded in-memory event queue with a single logical consumer.
// Publish never blocks: when the buffer is full the event is dropped
// (logged + counted). Delivery is at-least-once with no acknowledgment,
// which is acceptable for a desktop-scale job count.
type Bus struct {
	queue   chan Event
	logger  *slog.Logger
	metrics MetricsRecorder

	published atomic.Int64
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Stats holds bus counters.
type Stats struct {
	QueueDepth int
	Published  int64
	Dropped    int64
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int, metrics MetricsRecorder) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{
		queue:   make(chan Event, buffer),
		logger:  slog.With("component", "eventbus"),
		metrics: metrics,
	}
}

// Publish queues an event for the subscriber. Non-blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.queue <- ev:
		b.published.Add(1)
		if b.metrics != nil {
			b.metrics.RecordEventPublished(context.Background(), string(ev.Type))
		}
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event dropped, buffer full", "type", ev.Type, "id", ev.ID)
		if b.metrics != nil {
			b.metrics.RecordEventDropped(context.Background(), string(ev.Type))
		}
	}
}

// Events returns the subscriber channel. It is closed by Close.
func (b *Bus) Events() <-chan Event {
	return b.queue
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		QueueDepth: len(b.queue),
		Published:  b.published.Load(),
		Dropped:    b.dropped.Load(),
	}
}

// Close stops the bus. Events queued but not yet consumed remain readable
// until the channel drains.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}
