package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"feed-digest/domain"
)

type weeklySummaryRepository struct {
	db     DB
	logger *slog.Logger
}

// NewWeeklySummaryRepository creates a weekly summary repository.
func NewWeeklySummaryRepository(db DB, logger *slog.Logger) WeeklySummaryRepository {
	return &weeklySummaryRepository{db: db, logger: logger}
}

// Create persists the weekly summary and its daily-summary associations.
// A unique violation on (week_start, week_end) surfaces as a Duplicate
// error, which the digest consumer treats as already-handled.
func (r *weeklySummaryRepository) Create(ctx context.Context, summary *domain.WeeklySummary, dailySummaryIDs []string) error {
	const op = "weekly_summary.create"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classifyDBError(op, err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Insert("weekly_summaries").
		Columns("week_start", "week_end", "title", "recap", "below_the_fold", "so_what", "topics").
		Values(domain.TruncateToDay(summary.WeekStart), domain.TruncateToDay(summary.WeekEnd),
			summary.Title, summary.Recap, summary.BelowTheFold, summary.SoWhat,
			strings.Join(summary.Topics, ",")).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return classifyDBError(op, err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&summary.ID, &summary.CreatedAt); err != nil {
		return classifyDBError(op, err)
	}

	if len(dailySummaryIDs) > 0 {
		builder := psql.Insert("daily_weekly_summary_relations").Columns("daily_summary_id", "weekly_summary_id")
		for _, id := range dailySummaryIDs {
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

	r.logger.InfoContext(ctx, "weekly summary created",
		"summary_id", summary.ID,
		"week_start", summary.WeekStart.Format(domain.DateLayout),
		"week_end", summary.WeekEnd.Format(domain.DateLayout),
		"dailies", len(dailySummaryIDs))

	return nil
}

// DeleteByWeek removes an existing weekly summary for the range. Used only
// by forced regeneration; relations are removed by cascade.
func (r *weeklySummaryRepository) DeleteByWeek(ctx context.Context, weekStart, weekEnd time.Time) error {
	query, args, err := psql.Delete("weekly_summaries").
		Where(sq.Eq{
			"week_start": domain.TruncateToDay(weekStart),
			"week_end":   domain.TruncateToDay(weekEnd),
		}).
		ToSql()
	if err != nil {
		return classifyDBError("weekly_summary.delete_by_week", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return classifyDBError("weekly_summary.delete_by_week", err)
	}
	return nil
}

// MarkSent stamps the email dispatch time, the only post-creation mutation.
func (r *weeklySummaryRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.Update("weekly_summaries").
		Set("sent_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return classifyDBError("weekly_summary.mark_sent", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return classifyDBError("weekly_summary.mark_sent", err)
	}
	return nil
}
