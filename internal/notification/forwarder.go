package notification

import (
	"context"
	"log/slog"
	"time"

	"botrader/internal/model"
)

// Forwarder delivers notifications to a Notifier from its own goroutine so
// that slow sinks never block the caller. When the queue is full new
// notifications are dropped.
type Forwarder struct {
	sink    Notifier
	queue   chan model.Notification
	timeout time.Duration
	log     *slog.Logger

	// OnDrop is called when a notification is discarded. Optional.
	OnDrop func(model.Notification)
	// OnError is called when delivery fails. Optional.
	OnError func(model.Notification, error)
}

// NewForwarder creates a forwarder with the given queue size.
func NewForwarder(sink Notifier, queueSize int) *Forwarder {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Forwarder{
		sink:    sink,
		queue:   make(chan model.Notification, queueSize),
		timeout: 10 * time.Second,
		log:     slog.Default().With("component", "forwarder"),
	}
}

// Enqueue schedules n for delivery. Returns false if it was dropped.
func (f *Forwarder) Enqueue(n model.Notification) bool {
	select {
	case f.queue <- n:
		return true
	default:
		f.log.Warn("forward queue full, dropping", "id", n.ID)
		if f.OnDrop != nil {
			f.OnDrop(n)
		}
		return false
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.queue:
			sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
			err := f.sink.Send(sendCtx, n)
			cancel()
			if err != nil {
				f.log.Error("delivery failed", "id", n.ID, "error", err)
				if f.OnError != nil {
					f.OnError(n, err)
				}
			}
		}
	}
}
