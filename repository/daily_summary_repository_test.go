package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-digest/domain"
	pipeerr "feed-digest/utils/errors"
)

func TestDailySummaryRepository_Exists(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDailySummaryRepository(mock, discardLogger())

	date := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

	t.Run("true when a row exists", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM daily_summaries`).
			WithArgs("feed-1", domain.TruncateToDay(date)).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.Exists(context.Background(), "feed-1", date)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("false when nothing matches", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM daily_summaries`).
			WithArgs("feed-1", domain.TruncateToDay(date)).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.Exists(context.Background(), "feed-1", date)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailySummaryRepository_Create(t *testing.T) {
	summary := func() *domain.DailySummary {
		return &domain.DailySummary{
			FeedID:       "feed-1",
			SummaryDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Markdown:     "# summary",
			ArticleCount: 2,
		}
	}

	t.Run("persists summary and relations in one transaction", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewDailySummaryRepository(mock, discardLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO daily_summaries .+ RETURNING id, created_at`).
			WithArgs(anyArgs(9)...).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
				AddRow("sum-1", time.Now()))
		mock.ExpectExec(`INSERT INTO article_summary_relations`).
			WithArgs(anyArgs(4)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		s := summary()
		require.NoError(t, repo.Create(context.Background(), s, []string{"a1", "a2"}))
		assert.Equal(t, "sum-1", s.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation surfaces as duplicate", func(t *testing.T) {
		mock := newMockPool(t)
		repo := NewDailySummaryRepository(mock, discardLogger())

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO daily_summaries`).
			WithArgs(anyArgs(9)...).
			WillReturnError(&pgconn.PgError{
				Code:           "23505",
				ConstraintName: "daily_summaries_feed_id_summary_date_key",
			})
		mock.ExpectRollback()

		err := repo.Create(context.Background(), summary(), []string{"a1"})

		require.Error(t, err)
		assert.True(t, pipeerr.IsDuplicate(err))
		assert.False(t, pipeerr.IsRetryable(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDailySummaryRepository_FindRecent(t *testing.T) {
	mock := newMockPool(t)
	repo := NewDailySummaryRepository(mock, discardLogger())

	until := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	since := until.AddDate(0, 0, -7)

	mock.ExpectQuery(`SELECT .+ FROM daily_summaries WHERE feed_id = .+ ORDER BY summary_date DESC LIMIT 5`).
		WithArgs("feed-1", since, until).
		WillReturnRows(pgxmock.NewRows(dailySummaryColumns).
			AddRow("sum-1", "feed-1", until.AddDate(0, 0, -1), "yesterday", []byte(nil),
				"", (*float64)(nil), "ai,chips", "", 3, time.Now()))

	summaries, err := repo.FindRecent(context.Background(), "feed-1", since, until, 5)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	assert.Equal(t, "yesterday", summaries[0].Markdown)
	assert.Equal(t, []string{"ai", "chips"}, summaries[0].Topics)
	assert.Nil(t, summaries[0].Entities)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b , "))
}
