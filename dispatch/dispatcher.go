// Package dispatch routes typed messages between pipeline stages. Every
// payload is schema-validated on the producer side before enqueue, so a
// malformed message fails fast instead of poisoning a consumer.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-digest/domain"
	pipeerr "feed-digest/utils/errors"
)

// StreamPublisher is the queue driver surface the dispatcher needs.
type StreamPublisher interface {
	Publish(ctx context.Context, stream domain.StreamKey, msg domain.Message) (string, error)
	PublishBatch(ctx context.Context, stream domain.StreamKey, msgs []domain.Message) ([]string, error)
}

// Dispatcher validates and publishes typed messages to their streams.
type Dispatcher struct {
	publisher StreamPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher over the given publisher.
func NewDispatcher(publisher StreamPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, logger: logger, now: time.Now}
}

// Send validates and publishes one message, attaching a requestId and
// timestamp if not already present. An unknown stream binding is a
// configuration error, raised immediately.
func (d *Dispatcher) Send(ctx context.Context, msg domain.Message) error {
	stream := msg.Stream()
	if !stream.IsValid() {
		return pipeerr.NewConfigurationError("dispatch.send", fmt.Sprintf("no queue binding for stream %q", stream))
	}

	msg.Env().Ensure(d.now())

	if err := msg.Validate(); err != nil {
		return pipeerr.NewValidationError("dispatch.send", err.Error())
	}

	id, err := d.publisher.Publish(ctx, stream, msg)
	if err != nil {
		return pipeerr.NewQueueError("dispatch.send", err)
	}

	d.logger.InfoContext(ctx, "message dispatched",
		"stream", stream.String(),
		"message_id", id,
		"request_id", msg.Env().RequestID)

	return nil
}

// SendBatch validates every message before sending any, then publishes the
// whole batch to one stream.
func (d *Dispatcher) SendBatch(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	stream := msgs[0].Stream()
	if !stream.IsValid() {
		return pipeerr.NewConfigurationError("dispatch.send_batch", fmt.Sprintf("no queue binding for stream %q", stream))
	}

	for i, msg := range msgs {
		if msg.Stream() != stream {
			return pipeerr.NewValidationError("dispatch.send_batch",
				fmt.Sprintf("message %d targets stream %q, batch targets %q", i, msg.Stream(), stream))
		}
		msg.Env().Ensure(d.now())
		if err := msg.Validate(); err != nil {
			return pipeerr.NewValidationError("dispatch.send_batch", fmt.Sprintf("message %d: %v", i, err))
		}
	}

	ids, err := d.publisher.PublishBatch(ctx, stream, msgs)
	if err != nil {
		return pipeerr.NewQueueError("dispatch.send_batch", err)
	}

	d.logger.InfoContext(ctx, "batch dispatched",
		"stream", stream.String(),
		"count", len(ids))

	return nil
}
