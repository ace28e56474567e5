// Package driver provides implementations for external dependencies: the
// Redis Streams queue, the feed parser, the generative-text backend, and
// the email provider.
package driver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"feed-digest/domain"
)

// StreamMessage is one raw entry read from a stream.
type StreamMessage struct {
	ID        string
	RequestID string
	Timestamp string
	Payload   []byte
}

// RedisDriver implements queue publish and consume over Redis Streams.
type RedisDriver struct {
	client *redis.Client
}

// NewRedisDriver creates a driver from a host:port address.
func NewRedisDriver(addr string) *RedisDriver {
	return &RedisDriver{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisDriverWithURL creates a driver from a Redis URL.
func NewRedisDriverWithURL(url string) (*RedisDriver, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisDriver{client: redis.NewClient(opts)}, nil
}

// Client exposes the underlying client for collaborators sharing the
// connection (the digest archive).
func (d *RedisDriver) Client() *redis.Client { return d.client }

// Close closes the Redis connection.
func (d *RedisDriver) Close() error { return d.client.Close() }

// Publish appends a message to a stream and returns the message ID.
func (d *RedisDriver) Publish(ctx context.Context, stream domain.StreamKey, msg domain.Message) (string, error) {
	values, err := messageToValues(msg)
	if err != nil {
		return "", err
	}

	return d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream.String(),
		Values: values,
	}).Result()
}

// PublishBatch appends multiple messages to a stream using a pipeline.
func (d *RedisDriver) PublishBatch(ctx context.Context, stream domain.StreamKey, msgs []domain.Message) ([]string, error) {
	if len(msgs) == 0 {
		return []string{}, nil
	}

	pipe := d.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(msgs))

	for _, msg := range msgs {
		values, err := messageToValues(msg)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream.String(),
			Values: values,
		}))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		ids = append(ids, cmd.Val())
	}
	return ids, nil
}

// CreateConsumerGroup creates the consumer group if it does not exist yet.
func (d *RedisDriver) CreateConsumerGroup(ctx context.Context, stream domain.StreamKey, group string) error {
	err := d.client.XGroupCreateMkStream(ctx, stream.String(), group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ReadGroup blocks for up to block waiting for new messages on the stream.
// An empty slice (no error) means no messages were available.
func (d *RedisDriver) ReadGroup(ctx context.Context, stream domain.StreamKey, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream.String(), ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []StreamMessage
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, parseStreamMessage(m))
		}
	}
	return out, nil
}

// Ack acknowledges a processed message so it is not redelivered.
func (d *RedisDriver) Ack(ctx context.Context, stream domain.StreamKey, group, messageID string) error {
	return d.client.XAck(ctx, stream.String(), group, messageID).Err()
}

// Ping checks if Redis is available.
func (d *RedisDriver) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

func messageToValues(msg domain.Message) (map[string]interface{}, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	env := msg.Env()
	return map[string]interface{}{
		"request_id": env.RequestID,
		"timestamp":  env.Timestamp,
		"payload":    string(payload),
	}, nil
}

func parseStreamMessage(m redis.XMessage) StreamMessage {
	out := StreamMessage{ID: m.ID}
	if v, ok := m.Values["request_id"].(string); ok {
		out.RequestID = v
	}
	if v, ok := m.Values["timestamp"].(string); ok {
		out.Timestamp = v
	}
	if v, ok := m.Values["payload"].(string); ok {
		out.Payload = []byte(v)
	}
	return out
}
