package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/observability"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[EventType][]EventHandler)
	}
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a synchronous dispatcher. Handlers run on the publisher's goroutine.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{logger: logger}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	deliver(ctx, d.logger, d.handlers(event.Type), event)
	return nil
}

// AsyncDispatcher queues events on a bounded channel and delivers them from Run.
// Publish never blocks: when the queue is full the event is dropped and counted.
type AsyncDispatcher struct {
	registry
	queue   chan Event
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAsyncDispatcher creates a dispatcher with room for size pending events.
func NewAsyncDispatcher(size int, logger *zap.Logger, metrics *observability.Metrics) *AsyncDispatcher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncDispatcher{
		queue:   make(chan Event, size),
		logger:  logger,
		metrics: metrics,
	}
}

// Publish enqueues event.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	select {
	case d.queue <- event:
		d.metrics.SetNotificationQueueDepth(len(d.queue))
	default:
		d.metrics.RecordNotificationDropped()
		d.logger.Warn("event queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("change_request_id", event.ChangeRequestID))
	}
	return nil
}

// Pending returns the number of queued events.
func (d *AsyncDispatcher) Pending() int {
	return len(d.queue)
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (d *AsyncDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case event := <-d.queue:
			d.metrics.SetNotificationQueueDepth(len(d.queue))
			deliver(ctx, d.logger, d.handlers(event.Type), event)
		}
	}
}

func (d *AsyncDispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			deliver(ctx, d.logger, d.handlers(event.Type), event)
		default:
			d.metrics.SetNotificationQueueDepth(0)
			return
		}
	}
}

func deliver(ctx context.Context, logger *zap.Logger, handlers []EventHandler, event Event) {
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("change_request_id", event.ChangeRequestID),
				zap.Error(err))
		}
	}
}
