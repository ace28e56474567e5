package repository

import (
	"context"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"feed-digest/domain"
)

type articleRepository struct {
	db     DB
	logger *slog.Logger
}

// NewArticleRepository creates an article repository.
func NewArticleRepository(db DB, logger *slog.Logger) ArticleRepository {
	return &articleRepository{db: db, logger: logger}
}

// ExistingLinks returns the subset of links already present, in a single
// batched lookup so dedup cost is one query per ingestion run.
func (r *articleRepository) ExistingLinks(ctx context.Context, links []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if len(links) == 0 {
		return seen, nil
	}

	query, args, err := psql.Select("link").From("articles").
		Where(sq.Eq{"link": links}).
		ToSql()
	if err != nil {
		return nil, classifyDBError("article.existing_links", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError("article.existing_links", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, classifyDBError("article.existing_links", err)
		}
		seen[link] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError("article.existing_links", err)
	}

	return seen, nil
}

// CreateBatch inserts the given articles. Links that raced into existence
// since the dedup lookup are skipped by the conflict clause, matching the
// silently-skipped dedup contract.
func (r *articleRepository) CreateBatch(ctx context.Context, articles []*domain.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	builder := psql.Insert("articles").
		Columns("feed_id", "title", "link", "content", "snippet", "creator", "published_at")
	for _, a := range articles {
		builder = builder.Values(a.FeedID, a.Title, a.Link, a.Content, a.Snippet, a.Creator, a.PublishedAt)
	}

	query, args, err := builder.Suffix("ON CONFLICT (link) DO NOTHING").ToSql()
	if err != nil {
		return 0, classifyDBError("article.create_batch", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, classifyDBError("article.create_batch", err)
	}

	inserted := int(tag.RowsAffected())
	r.logger.InfoContext(ctx, "articles stored", "offered", len(articles), "inserted", inserted)

	return inserted, nil
}

var articleWithFeedColumns = []string{
	"a.id", "a.feed_id", "a.title", "a.link", "a.content", "a.snippet",
	"a.creator", "a.published_at", "a.processed", "a.created_at", "f.name",
}

// FindByDateRange returns articles published inside [start, end] joined to
// their owning feed's name, optionally filtered to one feed.
func (r *articleRepository) FindByDateRange(ctx context.Context, start, end time.Time, feedName string) ([]*domain.ArticleWithFeed, error) {
	builder := psql.Select(articleWithFeedColumns...).
		From("articles a").
		Join("feeds f ON f.id = a.feed_id").
		Where(sq.GtOrEq{"a.published_at": start}).
		Where(sq.LtOrEq{"a.published_at": end}).
		OrderBy("f.name", "a.published_at DESC")
	if feedName != "" {
		builder = builder.Where(sq.Eq{"f.name": feedName})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, classifyDBError("article.find_by_date_range", err)
	}

	return r.queryArticles(ctx, "article.find_by_date_range", query, args)
}

// FindByIDs returns the given articles newest-publish-first.
func (r *articleRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.ArticleWithFeed, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := psql.Select(articleWithFeedColumns...).
		From("articles a").
		Join("feeds f ON f.id = a.feed_id").
		Where(sq.Eq{"a.id": ids}).
		OrderBy("a.published_at DESC").
		ToSql()
	if err != nil {
		return nil, classifyDBError("article.find_by_ids", err)
	}

	return r.queryArticles(ctx, "article.find_by_ids", query, args)
}

func (r *articleRepository) queryArticles(ctx context.Context, op, query string, args []any) ([]*domain.ArticleWithFeed, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyDBError(op, err)
	}
	defer rows.Close()

	var out []*domain.ArticleWithFeed
	for rows.Next() {
		var a domain.ArticleWithFeed
		if err := rows.Scan(&a.ID, &a.FeedID, &a.Title, &a.Link, &a.Content, &a.Snippet,
			&a.Creator, &a.PublishedAt, &a.Processed, &a.CreatedAt, &a.FeedName); err != nil {
			return nil, classifyDBError(op, err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError(op, err)
	}

	return out, nil
}
