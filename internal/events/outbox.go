package events

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// DefaultOutboxSize is the number of events buffered ahead of the publisher
const DefaultOutboxSize = 256

// ErrOutboxFull is returned when an event is dropped because the buffer is full
var ErrOutboxFull = errors.New("event outbox full")

// Outbox queues events in order and hands them to the next publisher from
// Run's goroutine. Publish never waits on the broker.
type Outbox struct {
	next    Publisher
	logger  *slog.Logger
	queue   chan Event
	dropped atomic.Uint64
}

// NewOutbox wraps next; size <= 0 uses DefaultOutboxSize
func NewOutbox(next Publisher, size int, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		next:   next,
		logger: logger,
		queue:  make(chan Event, size),
	}
}

// Publish enqueues e, or drops it when the buffer is full
func (o *Outbox) Publish(_ context.Context, e Event) error {
	select {
	case o.queue <- e:
		return nil
	default:
		o.dropped.Add(1)
		o.logger.Warn("Event outbox full, dropping scan event",
			slog.String("type", string(e.Type)),
			slog.String("job_id", e.JobID),
		)
		return ErrOutboxFull
	}
}

// Run delivers queued events until ctx is canceled
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(o.queue); n > 0 {
				o.logger.Warn("Event outbox stopped with undelivered events",
					slog.Int("pending", n),
				)
			}
			return nil

		case e := <-o.queue:
			if err := o.next.Publish(ctx, e); err != nil {
				o.logger.Warn("Failed to publish scan event",
					slog.String("type", string(e.Type)),
					slog.String("job_id", e.JobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (o *Outbox) Dropped() uint64 {
	return o.dropped.Load()
}
