// Package archive persists weekly digest context documents to a
// path-prefixed Redis namespace keyed by ISO year-week. The archive is a
// best-effort collaborator: the weekly pipeline logs and swallows its
// failures.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"feed-digest/domain"
)

// RedisArchive stores digest entries as small JSON documents, with a sorted
// set index so recent weeks can be listed without scanning keys.
type RedisArchive struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisArchive creates an archive over the given client and namespace
// prefix.
func NewRedisArchive(client *redis.Client, prefix string, logger *slog.Logger) *RedisArchive {
	return &RedisArchive{client: client, prefix: prefix, logger: logger}
}

func (a *RedisArchive) entryKey(weekKey string) string {
	return fmt.Sprintf("%s:%s", a.prefix, weekKey)
}

func (a *RedisArchive) indexKey() string {
	return a.prefix + ":index"
}

// Put stores the entry under the ISO year-week key and indexes it by its
// generation time.
func (a *RedisArchive) Put(ctx context.Context, weekKey string, entry domain.DigestArchiveEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}

	if err := a.client.Set(ctx, a.entryKey(weekKey), raw, 0).Err(); err != nil {
		return fmt.Errorf("store archive entry: %w", err)
	}

	err = a.client.ZAdd(ctx, a.indexKey(), redis.Z{
		Score:  float64(entry.GeneratedAt.Unix()),
		Member: weekKey,
	}).Err()
	if err != nil {
		return fmt.Errorf("index archive entry: %w", err)
	}

	a.logger.InfoContext(ctx, "digest archived", "week", weekKey)

	return nil
}

// Get fetches one entry by ISO year-week key. A missing key returns
// (nil, nil).
func (a *RedisArchive) Get(ctx context.Context, weekKey string) (*domain.DigestArchiveEntry, error) {
	raw, err := a.client.Get(ctx, a.entryKey(weekKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch archive entry: %w", err)
	}

	var entry domain.DigestArchiveEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode archive entry: %w", err)
	}
	return &entry, nil
}

// ListRecent returns up to limit entries, most recent week first.
func (a *RedisArchive) ListRecent(ctx context.Context, limit int) ([]*domain.DigestArchiveEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	weekKeys, err := a.client.ZRevRange(ctx, a.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list archive index: %w", err)
	}

	entries := make([]*domain.DigestArchiveEntry, 0, len(weekKeys))
	for _, weekKey := range weekKeys {
		entry, err := a.Get(ctx, weekKey)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
