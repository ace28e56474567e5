package domain

import "time"

// DailySummary is one generated summary for a (feed, day) pair. The
// (FeedID, SummaryDate) pair is unique and forms the idempotency boundary:
// a duplicate insert is classified as benign and treated as success.
type DailySummary struct {
	ID            string
	FeedID        string
	SummaryDate   time.Time // truncated to day, UTC
	Markdown      string
	StructuredRaw []byte // optional structured JSON content
	SchemaVersion string
	Sentiment     *float64
	Topics        []string
	Entities      []string
	ArticleCount  int
	CreatedAt     time.Time
}

// WeeklySummary is the aggregated recap for one (WeekStart, WeekEnd) pair,
// which is unique. SentAt is the only post-creation mutation, stamped after
// a successful email dispatch.
type WeeklySummary struct {
	ID           string
	WeekStart    time.Time
	WeekEnd      time.Time
	Title        string
	Recap        string
	BelowTheFold string
	SoWhat       string
	Topics       []string
	SentAt       *time.Time
	CreatedAt    time.Time
}

// DigestArchiveEntry is the small JSON document persisted to the
// historical-context archive, keyed by ISO year-week.
type DigestArchiveEntry struct {
	Title       string    `json:"title"`
	Topics      []string  `json:"topics"`
	Recap       string    `json:"recap"`
	GeneratedAt time.Time `json:"generated_at"`
}
