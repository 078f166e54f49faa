package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultPublishTimeout = 5 * time.Second

// Dispatcher queues events and publishes them on a background goroutine.
// Emit never blocks; when the queue is full the event is dropped.
type Dispatcher struct {
	publisher      EventPublisher
	queue          chan *SessionEvent
	logger         *slog.Logger
	publishTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	done    chan struct{}
}

func NewDispatcher(publisher EventPublisher, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Dispatcher{
		publisher:      publisher,
		queue:          make(chan *SessionEvent, bufferSize),
		logger:         logger.With("component", "event_dispatcher"),
		publishTimeout: defaultPublishTimeout,
		done:           make(chan struct{}),
	}
}

// Start launches the publishing loop. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		go d.run()
	})
}

// Emit enqueues an event without waiting for delivery.
func (d *Dispatcher) Emit(event *SessionEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping event", "event_id", event.ID, "event_type", event.Type)
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("Event queue full, dropping event",
			"event_id", event.ID,
			"event_type", event.Type,
			"capacity", cap(d.queue))
	}
}

// Close stops accepting events, drains the queue, then closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.Start()
	<-d.done
	return d.publisher.Close()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.publish(event)
	}
}

func (d *Dispatcher) publish(event *SessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Error("Failed to deliver session event",
			"event_id", event.ID,
			"event_type", event.Type,
			"session_id", event.SessionID,
			"error", err)
	}
}
