// Package events dispatches domain events to the notification pipeline in
// the background so publishers never wait for fan-out.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/metrics"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1024
)

// Consumer handles one event at a time
type Consumer interface {
	Process(ctx context.Context, event domain.DomainEvent) error
}

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc func(ctx context.Context, event domain.DomainEvent) error

func (f ConsumerFunc) Process(ctx context.Context, event domain.DomainEvent) error {
	return f(ctx, event)
}

// Bus is a bounded in-process queue drained by a fixed set of workers.
// When the queue is full the oldest pending event is dropped.
type Bus struct {
	consumer Consumer
	workers  int
	queue    chan domain.DomainEvent

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	dropped atomic.Uint64
}

// NewBus creates a bus feeding consumer. Non-positive sizes fall back to defaults.
func NewBus(consumer Consumer, workers, queueSize int) *Bus {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		consumer: consumer,
		workers:  workers,
		queue:    make(chan domain.DomainEvent, queueSize),
	}
}

// Start launches the workers. Events are processed with ctx.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.work(ctx)
	}
}

// Stop stops accepting events, lets the workers drain the queue and waits for them
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
}

// Publish enqueues an event and returns it with its id and timestamp filled
// in. It never blocks; events published after Stop are discarded.
func (b *Bus) Publish(event domain.DomainEvent) domain.DomainEvent {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		slog.Warn("event published after bus stopped", slog.String("event_type", event.Type), slog.String("event_id", event.ID.String()))
		return event
	}

	for {
		select {
		case b.queue <- event:
			metrics.EventsPublished.WithLabelValues(event.Type).Inc()
			return event
		default:
		}

		select {
		case old := <-b.queue:
			b.recordDrop(old)
		default:
		}
	}
}

// Dropped returns how many events were evicted from a full queue
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Pending returns the number of queued events
func (b *Bus) Pending() int {
	return len(b.queue)
}

func (b *Bus) recordDrop(event domain.DomainEvent) {
	n := b.dropped.Add(1)
	metrics.EventsDropped.Inc()
	if n%100 == 1 {
		slog.Warn("event queue full, dropping oldest event",
			slog.String("event_type", event.Type),
			slog.String("event_id", event.ID.String()),
			slog.Uint64("total_drops", n),
		)
	}
}

func (b *Bus) work(ctx context.Context) {
	defer b.wg.Done()
	for event := range b.queue {
		if err := b.dispatch(ctx, event); err != nil {
			logger.From(ctx).Error("failed to process event",
				slog.String("event_type", event.Type),
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return b.consumer.Process(ctx, event)
}
