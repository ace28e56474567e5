package driver

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-digest/domain"
)

func newTestDriver(t *testing.T) *RedisDriver {
	t.Helper()
	mr := miniredis.RunT(t)
	d := NewRedisDriver(mr.Addr())
	t.Cleanup(func() { d.Close() })
	return d
}

func fetchMessage(requestID string) *domain.FeedFetchMessage {
	return &domain.FeedFetchMessage{
		Envelope: domain.Envelope{
			RequestID: requestID,
			Timestamp: "2025-06-01T12:00:00Z",
		},
		FeedURL:  "https://example.com/feed.xml",
		FeedName: "Example",
		Action:   domain.ActionFetch,
	}
}

func TestRedisDriver_PublishAndReadGroup(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.Publish(ctx, domain.StreamFeedFetch, fetchMessage("req-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, d.CreateConsumerGroup(ctx, domain.StreamFeedFetch, "test-group"))

	msgs, err := d.ReadGroup(ctx, domain.StreamFeedFetch, "test-group", "c1", 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "req-1", msgs[0].RequestID)
	assert.Contains(t, string(msgs[0].Payload), "https://example.com/feed.xml")
}

func TestRedisDriver_PublishBatch(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	msgs := []domain.Message{fetchMessage("req-1"), fetchMessage("req-2"), fetchMessage("req-3")}
	ids, err := d.PublishBatch(ctx, domain.StreamFeedFetch, msgs)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	require.NoError(t, d.CreateConsumerGroup(ctx, domain.StreamFeedFetch, "g"))
	read, err := d.ReadGroup(ctx, domain.StreamFeedFetch, "g", "c1", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, read, 3)
}

func TestRedisDriver_Ack(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	id, err := d.Publish(ctx, domain.StreamDailyProcess, &domain.DailyProcessMessage{
		Envelope:   domain.Envelope{RequestID: "req-1", Timestamp: "2025-06-01T12:00:00Z"},
		Date:       "2025-06-01",
		FeedName:   "Example",
		ArticleIDs: []string{"a1"},
	})
	require.NoError(t, err)

	require.NoError(t, d.CreateConsumerGroup(ctx, domain.StreamDailyProcess, "g"))

	msgs, err := d.ReadGroup(ctx, domain.StreamDailyProcess, "g", "c1", 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, d.Ack(ctx, domain.StreamDailyProcess, "g", id))

	// Nothing new and nothing pending after the ack.
	msgs, err = d.ReadGroup(ctx, domain.StreamDailyProcess, "g", "c1", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRedisDriver_CreateConsumerGroupIdempotent(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	require.NoError(t, d.CreateConsumerGroup(ctx, domain.StreamWeeklyDigest, "g"))
	// A second create hits BUSYGROUP, which is not an error.
	require.NoError(t, d.CreateConsumerGroup(ctx, domain.StreamWeeklyDigest, "g"))
}

func TestRedisDriver_ReadGroupEmpty(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	require.NoError(t, d.CreateConsumerGroup(ctx, domain.StreamFeedFetch, "g"))
	msgs, err := d.ReadGroup(ctx, domain.StreamFeedFetch, "g", "c1", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
