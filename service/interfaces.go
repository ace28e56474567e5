package service

import (
	"context"

	"feed-digest/domain"
	"feed-digest/driver"
)

// FeedFetcher retrieves and validates remote feeds.
type FeedFetcher interface {
	FetchItems(ctx context.Context, feedURL string) ([]domain.FeedItem, error)
	Validate(ctx context.Context, feedURL string) domain.FeedValidation
}

// TextGenerator is the generative-text backend surface.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, params driver.GenerateParams) (string, error)
	GenerateJSON(ctx context.Context, prompt string, params driver.GenerateParams, out any) error
}

// EmailSender delivers digest email. It returns the provider message ID.
type EmailSender interface {
	Send(ctx context.Context, recipients []string, subject, html string) (string, error)
}

// ArchiveStore is the historical-context archive of past digests.
type ArchiveStore interface {
	Put(ctx context.Context, weekKey string, entry domain.DigestArchiveEntry) error
	Get(ctx context.Context, weekKey string) (*domain.DigestArchiveEntry, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.DigestArchiveEntry, error)
}

// MessageSender publishes typed messages to their pipeline streams.
type MessageSender interface {
	Send(ctx context.Context, msg domain.Message) error
	SendBatch(ctx context.Context, msgs []domain.Message) error
}
