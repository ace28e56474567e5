package repository

import (
	"context"
	"time"

	"feed-digest/domain"
)

// FeedRepository manages feed records and their health metadata.
type FeedRepository interface {
	FindByURL(ctx context.Context, url string) (*domain.Feed, error)
	FindByName(ctx context.Context, name string) (*domain.Feed, error)
	Create(ctx context.Context, feed *domain.Feed) error
	ListActive(ctx context.Context) ([]*domain.Feed, error)
	UpdateFetchSuccess(ctx context.Context, feedID string, at time.Time) error
	UpdateFetchFailure(ctx context.Context, feedID string, message string) error
	UpdateValidation(ctx context.Context, feedID string, valid bool, message, title string) error
}

// ArticleRepository manages ingested articles.
type ArticleRepository interface {
	ExistingLinks(ctx context.Context, links []string) (map[string]struct{}, error)
	CreateBatch(ctx context.Context, articles []*domain.Article) (int, error)
	FindByDateRange(ctx context.Context, start, end time.Time, feedName string) ([]*domain.ArticleWithFeed, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.ArticleWithFeed, error)
}

// DailySummaryRepository manages per-(feed, day) summaries and their
// article associations.
type DailySummaryRepository interface {
	Exists(ctx context.Context, feedID string, date time.Time) (bool, error)
	Create(ctx context.Context, summary *domain.DailySummary, articleIDs []string) error
	FindRecent(ctx context.Context, feedID string, since, until time.Time, limit int) ([]*domain.DailySummary, error)
	FindByDateRange(ctx context.Context, start, end time.Time) ([]*domain.DailySummary, error)
}

// WeeklySummaryRepository manages weekly recaps and their daily-summary
// associations.
type WeeklySummaryRepository interface {
	Create(ctx context.Context, summary *domain.WeeklySummary, dailySummaryIDs []string) error
	DeleteByWeek(ctx context.Context, weekStart, weekEnd time.Time) error
	MarkSent(ctx context.Context, id string, at time.Time) error
}
