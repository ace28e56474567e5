package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"feed-digest/domain"
)

type feedRepository struct {
	db     DB
	logger *slog.Logger
}

// NewFeedRepository creates a feed repository.
func NewFeedRepository(db DB, logger *slog.Logger) FeedRepository {
	return &feedRepository{db: db, logger: logger}
}

var feedColumns = []string{
	"id", "name", "url", "category", "active", "valid",
	"last_error", "last_fetched_at", "error_count", "created_at",
}

func (r *feedRepository) FindByURL(ctx context.Context, url string) (*domain.Feed, error) {
	return r.findOne(ctx, sq.Eq{"url": url})
}

func (r *feedRepository) FindByName(ctx context.Context, name string) (*domain.Feed, error) {
	return r.findOne(ctx, sq.Eq{"name": name})
}

func (r *feedRepository) findOne(ctx context.Context, pred sq.Eq) (*domain.Feed, error) {
	query, args, err := psql.Select(feedColumns...).From("feeds").Where(pred).ToSql()
	if err != nil {
		return nil, classifyDBError("feed.find", err)
	}

	var f domain.Feed
	row := r.db.QueryRow(ctx, query, args...)
	err = row.Scan(&f.ID, &f.Name, &f.URL, &f.Category, &f.Active, &f.Valid,
		&f.LastError, &f.LastFetchedAt, &f.ErrorCount, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError("feed.find", err)
	}
	return &f, nil
}

func (r *feedRepository) Create(ctx context.Context, feed *domain.Feed) error {
	query, args, err := psql.Insert("feeds").
		Columns("name", "url", "category", "active", "valid", "last_error", "error_count").
		Values(feed.Name, feed.URL, feed.Category, feed.Active, feed.Valid, feed.LastError, feed.ErrorCount).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return classifyDBError("feed.create", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&feed.ID, &feed.CreatedAt); err != nil {
		return classifyDBError("feed.create", err)
	}

	r.logger.InfoContext(ctx, "feed created", "feed_id", feed.ID, "url", feed.URL)

	return nil
}

func (r *feedRepository) ListActive(ctx context.Context) ([]*domain.Feed, error) {
	query, args, err := psql.Select(feedColumns...).From("feeds").
		Where(sq.Eq{"active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, classifyDBError("feed.list_active", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError("feed.list_active", err)
	}
	defer rows.Close()

	var feeds []*domain.Feed
	for rows.Next() {
		var f domain.Feed
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &f.Category, &f.Active, &f.Valid,
			&f.LastError, &f.LastFetchedAt, &f.ErrorCount, &f.CreatedAt); err != nil {
			return nil, classifyDBError("feed.list_active", err)
		}
		feeds = append(feeds, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError("feed.list_active", err)
	}

	return feeds, nil
}

// UpdateFetchSuccess stamps the last fetch time and clears the error state.
func (r *feedRepository) UpdateFetchSuccess(ctx context.Context, feedID string, at time.Time) error {
	query, args, err := psql.Update("feeds").
		Set("last_fetched_at", at).
		Set("last_error", "").
		Set("error_count", 0).
		Set("valid", true).
		Where(sq.Eq{"id": feedID}).
		ToSql()
	if err != nil {
		return classifyDBError("feed.update_fetch_success", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return classifyDBError("feed.update_fetch_success", err)
	}
	return nil
}

// UpdateFetchFailure records the failure message and increments the
// consecutive error counter.
func (r *feedRepository) UpdateFetchFailure(ctx context.Context, feedID string, message string) error {
	query, args, err := psql.Update("feeds").
		Set("last_error", message).
		Set("error_count", sq.Expr("error_count + 1")).
		Where(sq.Eq{"id": feedID}).
		ToSql()
	if err != nil {
		return classifyDBError("feed.update_fetch_failure", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return classifyDBError("feed.update_fetch_failure", err)
	}
	return nil
}

func (r *feedRepository) UpdateValidation(ctx context.Context, feedID string, valid bool, message, title string) error {
	builder := psql.Update("feeds").
		Set("valid", valid).
		Set("last_error", message).
		Where(sq.Eq{"id": feedID})
	if title != "" {
		builder = builder.Set("name", title)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return classifyDBError("feed.update_validation", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return classifyDBError("feed.update_validation", err)
	}
	return nil
}
