// Package domain contains the core types of the feed-digest pipeline.
package domain

import "time"

// Feed is a subscribed RSS/Atom source. The URL is globally unique. Feeds
// are never hard-deleted in normal operation, only deactivated.
type Feed struct {
	ID            string
	Name          string
	URL           string
	Category      string
	Active        bool
	Valid         bool
	LastError     string
	LastFetchedAt *time.Time
	ErrorCount    int
	CreatedAt     time.Time
}

// Article is one ingested feed item. The link is globally unique and serves
// as the dedup key: a second ingestion of the same link is silently skipped.
type Article struct {
	ID          string
	FeedID      string
	Title       string
	Link        string
	Content     string
	Snippet     string
	Creator     string
	PublishedAt time.Time
	Processed   bool
	CreatedAt   time.Time
}

// ArticleWithFeed pairs an article with its owning feed's name, the shape
// returned by the initiator's day-window query.
type ArticleWithFeed struct {
	Article
	FeedName string
}

// FeedItem is one parsed item from the feed wire format, abstracting away
// RSS-vs-Atom differences.
type FeedItem struct {
	Title       string
	Link        string
	Content     string
	Snippet     string
	Creator     string
	GUID        string
	PublishedAt time.Time
}

// FeedValidation is the verdict of a lightweight fetch-and-sniff check
// against a feed URL. Validation never fails past this boundary; it always
// resolves to a verdict.
type FeedValidation struct {
	Valid bool
	Title string
	Error string
}
