package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feed-digest/config"
	"feed-digest/domain"
	"feed-digest/driver"
)

// StreamReader is the queue driver surface the consumer needs.
type StreamReader interface {
	CreateConsumerGroup(ctx context.Context, stream domain.StreamKey, group string) error
	ReadGroup(ctx context.Context, stream domain.StreamKey, group, consumer string, count int64, block time.Duration) ([]driver.StreamMessage, error)
	Ack(ctx context.Context, stream domain.StreamKey, group, messageID string) error
}

// MessageHandler routes one decoded delivery. ack reports whether the
// message should leave the queue regardless of err.
type MessageHandler interface {
	HandleMessage(ctx context.Context, stream domain.StreamKey, payload []byte) (ack bool, err error)
}

// Consumer runs one read loop per pipeline stream. Feed-fetch batches are
// processed in parallel since feeds are independent and fetch latency
// dominates; summary batches stay sequential because backend rate limits
// and the per-feed-per-date unique key make serialization safer.
type Consumer struct {
	reader  StreamReader
	handler MessageHandler
	cfg     config.RedisConfig
	logger  *slog.Logger

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer creates a consumer over the four pipeline streams.
func NewConsumer(reader StreamReader, handler MessageHandler, cfg config.RedisConfig, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:   reader,
		handler:  handler,
		cfg:      cfg,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

var pipelineStreams = []domain.StreamKey{
	domain.StreamFeedFetch,
	domain.StreamDailyInitiate,
	domain.StreamDailyProcess,
	domain.StreamWeeklyDigest,
}

// Start ensures the consumer groups exist and launches one loop per
// stream. It returns once the loops are running.
func (c *Consumer) Start(ctx context.Context) error {
	for _, stream := range pipelineStreams {
		if err := c.reader.CreateConsumerGroup(ctx, stream, c.cfg.GroupName); err != nil {
			return err
		}
	}

	c.logger.InfoContext(ctx, "starting consumers",
		"group", c.cfg.GroupName,
		"consumer", c.cfg.ConsumerName,
		"streams", len(pipelineStreams))

	for _, stream := range pipelineStreams {
		c.wg.Add(1)
		go func(stream domain.StreamKey) {
			defer c.wg.Done()
			c.consumeLoop(ctx, stream)
		}(stream)
	}
	return nil
}

// Stop requests shutdown and waits for the loops to drain.
func (c *Consumer) Stop() {
	close(c.shutdown)
	c.wg.Wait()
}

func (c *Consumer) consumeLoop(ctx context.Context, stream domain.StreamKey) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer context cancelled, stopping", "stream", stream.String())
			return
		case <-c.shutdown:
			c.logger.Info("consumer shutdown requested, stopping", "stream", stream.String())
			return
		default:
			if err := c.readAndProcess(ctx, stream); err != nil {
				if ctx.Err() != nil {
					continue
				}
				c.logger.Error("error reading stream",
					"stream", stream.String(),
					"error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) readAndProcess(ctx context.Context, stream domain.StreamKey) error {
	msgs, err := c.reader.ReadGroup(ctx, stream, c.cfg.GroupName, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.BlockTimeout)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	if stream == domain.StreamFeedFetch {
		c.processParallel(ctx, stream, msgs)
	} else {
		c.processSequential(ctx, stream, msgs)
	}
	return nil
}

// processParallel fires all messages at once and joins when every one has
// settled. A failed sibling never blocks the others.
func (c *Consumer) processParallel(ctx context.Context, stream domain.StreamKey, msgs []driver.StreamMessage) {
	var wg sync.WaitGroup
	for _, msg := range msgs {
		wg.Add(1)
		go func(msg driver.StreamMessage) {
			defer wg.Done()
			c.processOne(ctx, stream, msg)
		}(msg)
	}
	wg.Wait()
}

func (c *Consumer) processSequential(ctx context.Context, stream domain.StreamKey, msgs []driver.StreamMessage) {
	for _, msg := range msgs {
		c.processOne(ctx, stream, msg)
	}
}

func (c *Consumer) processOne(ctx context.Context, stream domain.StreamKey, msg driver.StreamMessage) {
	ack, err := c.handler.HandleMessage(ctx, stream, msg.Payload)
	if err != nil && !ack {
		// Left unacknowledged; the queue redelivers it.
		return
	}

	if ackErr := c.reader.Ack(ctx, stream, c.cfg.GroupName, msg.ID); ackErr != nil {
		c.logger.Error("failed to acknowledge message",
			"stream", stream.String(),
			"message_id", msg.ID,
			"error", ackErr)
	}
}
