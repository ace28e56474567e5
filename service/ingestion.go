package service

import (
	"context"
	"log/slog"
	"time"

	"feed-digest/domain"
	"feed-digest/repository"
)

// IngestionService ingests and validates feeds. Fetching is deduplicated on
// article link with a single batched lookup before insert.
type IngestionService struct {
	feeds    repository.FeedRepository
	articles repository.ArticleRepository
	fetcher  FeedFetcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewIngestionService creates the feed ingestion stage.
func NewIngestionService(
	feeds repository.FeedRepository,
	articles repository.ArticleRepository,
	fetcher FeedFetcher,
	logger *slog.Logger,
) *IngestionService {
	return &IngestionService{
		feeds:    feeds,
		articles: articles,
		fetcher:  fetcher,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate runs the lightweight fetch-and-sniff check and persists the
// verdict onto the feed record. The check itself never fails; it always
// resolves to a valid or invalid verdict.
func (s *IngestionService) Validate(ctx context.Context, msg *domain.FeedFetchMessage) error {
	verdict := s.fetcher.Validate(ctx, msg.FeedURL)

	feed, err := s.feeds.FindByURL(ctx, msg.FeedURL)
	if err != nil {
		return err
	}

	if feed == nil {
		name := msg.FeedName
		if verdict.Title != "" {
			name = verdict.Title
		}
		feed = &domain.Feed{
			Name:      name,
			URL:       msg.FeedURL,
			Active:    true,
			Valid:     verdict.Valid,
			LastError: verdict.Error,
		}
		if err := s.feeds.Create(ctx, feed); err != nil {
			return err
		}
	} else if err := s.feeds.UpdateValidation(ctx, feed.ID, verdict.Valid, verdict.Error, verdict.Title); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "feed validated",
		"feed_url", msg.FeedURL,
		"valid", verdict.Valid,
		"error", verdict.Error,
		"request_id", msg.RequestID)

	return nil
}

// Fetch retrieves the feed, persists unseen articles, and updates the
// feed's fetch state. A feed returning zero items is a successful no-op.
// On failure the error is recorded on the feed record and propagated so the
// consumer can decide whether to retry.
func (s *IngestionService) Fetch(ctx context.Context, msg *domain.FeedFetchMessage) error {
	items, err := s.fetcher.FetchItems(ctx, msg.FeedURL)
	if err != nil {
		s.recordFailure(ctx, msg, err)
		return err
	}

	if len(items) == 0 {
		s.logger.InfoContext(ctx, "feed returned no items",
			"feed_url", msg.FeedURL,
			"request_id", msg.RequestID)
		return nil
	}

	feed, err := s.feeds.FindByURL(ctx, msg.FeedURL)
	if err != nil {
		return err
	}
	if feed == nil {
		feed = &domain.Feed{
			Name:   msg.FeedName,
			URL:    msg.FeedURL,
			Active: true,
			Valid:  true,
		}
		if err := s.feeds.Create(ctx, feed); err != nil {
			return err
		}
	}

	links := make([]string, 0, len(items))
	for _, item := range items {
		links = append(links, item.Link)
	}
	seen, err := s.articles.ExistingLinks(ctx, links)
	if err != nil {
		return err
	}

	fresh := make([]*domain.Article, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Link]; ok {
			continue
		}
		fresh = append(fresh, &domain.Article{
			FeedID:      feed.ID,
			Title:       item.Title,
			Link:        item.Link,
			Content:     item.Content,
			Snippet:     item.Snippet,
			Creator:     item.Creator,
			PublishedAt: item.PublishedAt,
		})
	}

	inserted := 0
	if len(fresh) > 0 {
		inserted, err = s.articles.CreateBatch(ctx, fresh)
		if err != nil {
			s.recordFailure(ctx, msg, err)
			return err
		}
	}

	if err := s.feeds.UpdateFetchSuccess(ctx, feed.ID, s.now()); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "feed ingested",
		"feed_url", msg.FeedURL,
		"items", len(items),
		"new_articles", inserted,
		"request_id", msg.RequestID)

	return nil
}

// recordFailure stamps the error onto the feed record when the record
// exists. It is best effort; the original error still propagates.
func (s *IngestionService) recordFailure(ctx context.Context, msg *domain.FeedFetchMessage, cause error) {
	feed, err := s.feeds.FindByURL(ctx, msg.FeedURL)
	if err != nil || feed == nil {
		return
	}
	if err := s.feeds.UpdateFetchFailure(ctx, feed.ID, cause.Error()); err != nil {
		s.logger.WarnContext(ctx, "failed to record feed error",
			"feed_url", msg.FeedURL,
			"error", err)
	}
}
