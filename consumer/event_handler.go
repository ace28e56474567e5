// Package consumer reads pipeline tasks from Redis Streams and routes them
// to the service layer, acknowledging per the retry classification.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"feed-digest/domain"
	pipeerr "feed-digest/utils/errors"
)

// IngestionStage is the feed-fetch service surface.
type IngestionStage interface {
	Fetch(ctx context.Context, msg *domain.FeedFetchMessage) error
	Validate(ctx context.Context, msg *domain.FeedFetchMessage) error
}

// InitiatorStage is the daily-summary initiator surface.
type InitiatorStage interface {
	Initiate(ctx context.Context, msg *domain.DailyInitiateMessage) error
}

// ProcessorStage is the daily-summary processor surface.
type ProcessorStage interface {
	Process(ctx context.Context, msg *domain.DailyProcessMessage) error
}

// WeeklyStage is the weekly-digest surface.
type WeeklyStage interface {
	Generate(ctx context.Context, msg *domain.WeeklyDigestMessage) error
}

// EventHandler decodes one stream message and routes it to its stage. The
// returned ack flag decides whether the message leaves the queue: permanent
// failures are acknowledged so the queue does not redeliver them, retryable
// failures are left pending for redelivery.
type EventHandler struct {
	ingestion IngestionStage
	initiator InitiatorStage
	processor ProcessorStage
	weekly    WeeklyStage
	logger    *slog.Logger
}

// NewEventHandler creates the routing handler over the four stages.
func NewEventHandler(
	ingestion IngestionStage,
	initiator InitiatorStage,
	processor ProcessorStage,
	weekly WeeklyStage,
	logger *slog.Logger,
) *EventHandler {
	return &EventHandler{
		ingestion: ingestion,
		initiator: initiator,
		processor: processor,
		weekly:    weekly,
		logger:    logger,
	}
}

// HandleMessage processes one delivery.
func (h *EventHandler) HandleMessage(ctx context.Context, stream domain.StreamKey, payload []byte) (ack bool, err error) {
	msg, err := decodeMessage(stream, payload)
	if err != nil {
		// A payload that cannot decode or validate will never succeed on
		// redelivery. Acknowledge it out of the queue.
		h.logger.ErrorContext(ctx, "discarding malformed message",
			"stream", stream.String(),
			"error", err)
		return true, err
	}

	err = h.dispatch(ctx, stream, msg)
	if err == nil {
		return true, nil
	}

	if pipeerr.IsDuplicate(err) {
		h.logger.InfoContext(ctx, "duplicate task, acknowledging",
			"stream", stream.String(),
			"request_id", msg.Env().RequestID)
		return true, nil
	}

	if pipeerr.IsRetryable(err) {
		h.logger.WarnContext(ctx, "task failed, leaving for redelivery",
			"stream", stream.String(),
			"request_id", msg.Env().RequestID,
			"error", err)
		return false, err
	}

	h.logger.ErrorContext(ctx, "task failed permanently, acknowledging",
		"stream", stream.String(),
		"request_id", msg.Env().RequestID,
		"error", err)
	return true, err
}

func (h *EventHandler) dispatch(ctx context.Context, stream domain.StreamKey, msg domain.Message) error {
	switch m := msg.(type) {
	case *domain.FeedFetchMessage:
		if m.Action == domain.ActionValidate {
			return h.ingestion.Validate(ctx, m)
		}
		return h.ingestion.Fetch(ctx, m)
	case *domain.DailyInitiateMessage:
		return h.initiator.Initiate(ctx, m)
	case *domain.DailyProcessMessage:
		return h.processor.Process(ctx, m)
	case *domain.WeeklyDigestMessage:
		return h.weekly.Generate(ctx, m)
	default:
		return pipeerr.NewConfigurationError("consumer.dispatch",
			"no handler bound for stream "+stream.String())
	}
}

// decodeMessage unmarshals and schema-validates the payload for its stream.
func decodeMessage(stream domain.StreamKey, payload []byte) (domain.Message, error) {
	var msg domain.Message
	switch stream {
	case domain.StreamFeedFetch:
		msg = &domain.FeedFetchMessage{}
	case domain.StreamDailyInitiate:
		msg = &domain.DailyInitiateMessage{}
	case domain.StreamDailyProcess:
		msg = &domain.DailyProcessMessage{}
	case domain.StreamWeeklyDigest:
		msg = &domain.WeeklyDigestMessage{}
	default:
		return nil, pipeerr.NewConfigurationError("consumer.decode",
			"unknown stream "+stream.String())
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, pipeerr.NewValidationError("consumer.decode", err.Error())
	}
	if err := msg.Validate(); err != nil {
		return nil, pipeerr.NewValidationError("consumer.decode", err.Error())
	}
	return msg, nil
}
