package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"feed-digest/domain"
)

type dailySummaryRepository struct {
	db     DB
	logger *slog.Logger
}

// NewDailySummaryRepository creates a daily summary repository.
func NewDailySummaryRepository(db DB, logger *slog.Logger) DailySummaryRepository {
	return &dailySummaryRepository{db: db, logger: logger}
}

// Exists checks the (feed, date) idempotency key.
func (r *dailySummaryRepository) Exists(ctx context.Context, feedID string, date time.Time) (bool, error) {
	query, args, err := psql.Select("1").From("daily_summaries").
		Where(sq.Eq{"feed_id": feedID, "summary_date": domain.TruncateToDay(date)}).
		Prefix("SELECT EXISTS (").Suffix(")").
		ToSql()
	if err != nil {
		return false, classifyDBError("daily_summary.exists", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, classifyDBError("daily_summary.exists", err)
	}
	return exists, nil
}

// Create persists the summary and its article associations in one
// transaction. A unique violation on (feed_id, summary_date) surfaces as a
// Duplicate error for the caller to absorb.
func (r *dailySummaryRepository) Create(ctx context.Context, summary *domain.DailySummary, articleIDs []string) error {
	const op = "daily_summary.create"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classifyDBError(op, err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Insert("daily_summaries").
		Columns("feed_id", "summary_date", "markdown", "structured_content",
			"schema_version", "sentiment", "topics", "entities", "article_count").
		Values(summary.FeedID, domain.TruncateToDay(summary.SummaryDate), summary.Markdown,
			summary.StructuredRaw, summary.SchemaVersion, summary.Sentiment,
			strings.Join(summary.Topics, ","), strings.Join(summary.Entities, ","),
			summary.ArticleCount).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return classifyDBError(op, err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&summary.ID, &summary.CreatedAt); err != nil {
		return classifyDBError(op, err)
	}

	if len(articleIDs) > 0 {
		builder := psql.Insert("article_summary_relations").Columns("article_id", "daily_summary_id")
		for _, id := range articleIDs {
			builder = builder.Values(id, summary.ID)
		}
		relQuery, relArgs, err := builder.ToSql()
		if err != nil {
			return classifyDBError(op, err)
		}
		if _, err := tx.Exec(ctx, relQuery, relArgs...); err != nil {
			return classifyDBError(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyDBError(op, err)
	}

	r.logger.InfoContext(ctx, "daily summary created",
		"summary_id", summary.ID,
		"feed_id", summary.FeedID,
		"date", summary.SummaryDate.Format(domain.DateLayout),
		"articles", len(articleIDs))

	return nil
}

var dailySummaryColumns = []string{
	"id", "feed_id", "summary_date", "markdown", "structured_content",
	"schema_version", "sentiment", "topics", "entities", "article_count", "created_at",
}

// FindRecent returns up to limit summaries for the feed with dates in
// [since, until), most-recent-first. This feeds the related-context block
// of the daily prompt.
func (r *dailySummaryRepository) FindRecent(ctx context.Context, feedID string, since, until time.Time, limit int) ([]*domain.DailySummary, error) {
	query, args, err := psql.Select(dailySummaryColumns...).From("daily_summaries").
		Where(sq.Eq{"feed_id": feedID}).
		Where(sq.GtOrEq{"summary_date": domain.TruncateToDay(since)}).
		Where(sq.Lt{"summary_date": domain.TruncateToDay(until)}).
		OrderBy("summary_date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, classifyDBError("daily_summary.find_recent", err)
	}

	return r.querySummaries(ctx, "daily_summary.find_recent", query, args)
}

// FindByDateRange returns all summaries dated inside [start, end],
// most-recent-first.
func (r *dailySummaryRepository) FindByDateRange(ctx context.Context, start, end time.Time) ([]*domain.DailySummary, error) {
	query, args, err := psql.Select(dailySummaryColumns...).From("daily_summaries").
		Where(sq.GtOrEq{"summary_date": domain.TruncateToDay(start)}).
		Where(sq.LtOrEq{"summary_date": domain.TruncateToDay(end)}).
		OrderBy("summary_date DESC").
		ToSql()
	if err != nil {
		return nil, classifyDBError("daily_summary.find_by_date_range", err)
	}

	return r.querySummaries(ctx, "daily_summary.find_by_date_range", query, args)
}

func (r *dailySummaryRepository) querySummaries(ctx context.Context, op, query string, args []any) ([]*domain.DailySummary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError(op, err)
	}
	defer rows.Close()

	var out []*domain.DailySummary
	for rows.Next() {
		var s domain.DailySummary
		var topics, entities string
		if err := rows.Scan(&s.ID, &s.FeedID, &s.SummaryDate, &s.Markdown, &s.StructuredRaw,
			&s.SchemaVersion, &s.Sentiment, &topics, &entities, &s.ArticleCount, &s.CreatedAt); err != nil {
			return nil, classifyDBError(op, err)
		}
		s.Topics = splitList(topics)
		s.Entities = splitList(entities)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError(op, err)
	}

	return out, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
