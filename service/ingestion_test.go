package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-digest/domain"
)

func fetchMsg(action domain.FeedFetchAction) *domain.FeedFetchMessage {
	return &domain.FeedFetchMessage{
		Envelope: domain.Envelope{RequestID: "req-1", Timestamp: "2025-06-01T12:00:00Z"},
		FeedURL:  "https://example.com/feed.xml",
		FeedName: "Example",
		Action:   action,
	}
}

func feedItems(links ...string) []domain.FeedItem {
	items := make([]domain.FeedItem, 0, len(links))
	for _, link := range links {
		items = append(items, domain.FeedItem{
			Title:       "story",
			Link:        link,
			PublishedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		})
	}
	return items
}

func TestIngestionService_Fetch(t *testing.T) {
	t.Run("should persist only unseen links", func(t *testing.T) {
		feeds := &stubFeedRepo{feedsByURL: map[string]*domain.Feed{
			"https://example.com/feed.xml": {ID: "feed-1", Name: "Example"},
		}}
		articles := &stubArticleRepo{existing: map[string]struct{}{
			"https://example.com/1": {},
		}}
		fetcher := &stubFetcher{items: feedItems(
			"https://example.com/1", "https://example.com/2", "https://example.com/3")}

		svc := NewIngestionService(feeds, articles, fetcher, testLogger())
		require.NoError(t, svc.Fetch(context.Background(), fetchMsg(domain.ActionFetch)))

		require.Len(t, articles.stored, 2)
		assert.Equal(t, "https://example.com/2", articles.stored[0].Link)
		assert.Equal(t, "https://example.com/3", articles.stored[1].Link)
		assert.Equal(t, []string{"feed-1"}, feeds.fetchOK)
	})

	t.Run("should succeed as no-op on empty feed", func(t *testing.T) {
		feeds := &stubFeedRepo{}
		articles := &stubArticleRepo{}
		svc := NewIngestionService(feeds, articles, &stubFetcher{}, testLogger())

		require.NoError(t, svc.Fetch(context.Background(), fetchMsg(domain.ActionFetch)))
		assert.Empty(t, articles.stored)
		assert.Empty(t, feeds.fetchOK)
	})

	t.Run("should lazily create unknown feed", func(t *testing.T) {
		feeds := &stubFeedRepo{}
		articles := &stubArticleRepo{}
		fetcher := &stubFetcher{items: feedItems("https://example.com/1")}

		svc := NewIngestionService(feeds, articles, fetcher, testLogger())
		require.NoError(t, svc.Fetch(context.Background(), fetchMsg(domain.ActionFetch)))

		require.Len(t, feeds.created, 1)
		assert.Equal(t, "Example", feeds.created[0].Name)
		assert.True(t, feeds.created[0].Active)
		assert.True(t, feeds.created[0].Valid)
		require.Len(t, articles.stored, 1)
		assert.Equal(t, "feed-new", articles.stored[0].FeedID)
	})

	t.Run("should record failure and propagate fetch errors", func(t *testing.T) {
		feeds := &stubFeedRepo{feedsByURL: map[string]*domain.Feed{
			"https://example.com/feed.xml": {ID: "feed-1"},
		}}
		fetcher := &stubFetcher{fetchErr: errors.New("connection refused")}

		svc := NewIngestionService(feeds, &stubArticleRepo{}, fetcher, testLogger())
		err := svc.Fetch(context.Background(), fetchMsg(domain.ActionFetch))

		require.Error(t, err)
		assert.Equal(t, []string{"feed-1"}, feeds.fetchFailed)
	})
}

func TestIngestionService_Validate(t *testing.T) {
	t.Run("should persist verdict on existing feed", func(t *testing.T) {
		feeds := &stubFeedRepo{feedsByURL: map[string]*domain.Feed{
			"https://example.com/feed.xml": {ID: "feed-1"},
		}}
		fetcher := &stubFetcher{verdict: domain.FeedValidation{Valid: true, Title: "Example Feed"}}

		svc := NewIngestionService(feeds, &stubArticleRepo{}, fetcher, testLogger())
		require.NoError(t, svc.Validate(context.Background(), fetchMsg(domain.ActionValidate)))

		assert.Equal(t, []string{"feed-1"}, feeds.validated)
	})

	t.Run("should create feed with verdict when unknown", func(t *testing.T) {
		feeds := &stubFeedRepo{}
		fetcher := &stubFetcher{verdict: domain.FeedValidation{Valid: false, Error: "not a feed"}}

		svc := NewIngestionService(feeds, &stubArticleRepo{}, fetcher, testLogger())
		require.NoError(t, svc.Validate(context.Background(), fetchMsg(domain.ActionValidate)))

		require.Len(t, feeds.created, 1)
		assert.False(t, feeds.created[0].Valid)
		assert.Equal(t, "not a feed", feeds.created[0].LastError)
	})

	t.Run("should prefer sniffed title for new feeds", func(t *testing.T) {
		feeds := &stubFeedRepo{}
		fetcher := &stubFetcher{verdict: domain.FeedValidation{Valid: true, Title: "Sniffed Title"}}

		svc := NewIngestionService(feeds, &stubArticleRepo{}, fetcher, testLogger())
		require.NoError(t, svc.Validate(context.Background(), fetchMsg(domain.ActionValidate)))

		require.Len(t, feeds.created, 1)
		assert.Equal(t, "Sniffed Title", feeds.created[0].Name)
	})
}
