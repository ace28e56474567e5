package handler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-digest/config"
	"feed-digest/domain"
)

type stubFeedLister struct {
	active  []*domain.Feed
	listErr error
}

func (s *stubFeedLister) FindByURL(context.Context, string) (*domain.Feed, error)  { return nil, nil }
func (s *stubFeedLister) FindByName(context.Context, string) (*domain.Feed, error) { return nil, nil }
func (s *stubFeedLister) Create(context.Context, *domain.Feed) error               { return nil }
func (s *stubFeedLister) UpdateFetchSuccess(context.Context, string, time.Time) error {
	return nil
}
func (s *stubFeedLister) UpdateFetchFailure(context.Context, string, string) error { return nil }
func (s *stubFeedLister) UpdateValidation(context.Context, string, bool, string, string) error {
	return nil
}

func (s *stubFeedLister) ListActive(context.Context) ([]*domain.Feed, error) {
	return s.active, s.listErr
}

type recordedSchedule struct {
	name     string
	interval time.Duration
}

type stubScheduler struct {
	scheduled []recordedSchedule
}

func (s *stubScheduler) Schedule(_ context.Context, name string, interval time.Duration, _ func(ctx context.Context) error) error {
	s.scheduled = append(s.scheduled, recordedSchedule{name: name, interval: interval})
	return nil
}

func (s *stubScheduler) Stop(string) {}
func (s *stubScheduler) StopAll()    {}

func newPipelineJobs(feeds *stubFeedLister, sender *stubSender) *PipelineJobs {
	p := NewPipelineJobs(feeds, sender, slog.New(slog.DiscardHandler))
	p.now = func() time.Time { return time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC) }
	return p
}

func TestPipelineJobs_Register(t *testing.T) {
	t.Run("should schedule all three triggers when enabled", func(t *testing.T) {
		scheduler := &stubScheduler{}
		p := newPipelineJobs(&stubFeedLister{}, &stubSender{})

		cfg := config.ScheduleConfig{
			Enabled:           true,
			FeedFetchInterval: time.Hour,
			DailyInterval:     24 * time.Hour,
			WeeklyInterval:    7 * 24 * time.Hour,
		}
		require.NoError(t, p.Register(context.Background(), scheduler, cfg))

		require.Len(t, scheduler.scheduled, 3)
		assert.Equal(t, "feed-fetch", scheduler.scheduled[0].name)
		assert.Equal(t, time.Hour, scheduler.scheduled[0].interval)
		assert.Equal(t, "daily-summary", scheduler.scheduled[1].name)
		assert.Equal(t, "weekly-digest", scheduler.scheduled[2].name)
	})

	t.Run("should schedule nothing when disabled", func(t *testing.T) {
		scheduler := &stubScheduler{}
		p := newPipelineJobs(&stubFeedLister{}, &stubSender{})

		require.NoError(t, p.Register(context.Background(), scheduler, config.ScheduleConfig{}))
		assert.Empty(t, scheduler.scheduled)
	})
}

func TestPipelineJobs_Enqueue(t *testing.T) {
	t.Run("should batch one fetch task per active feed", func(t *testing.T) {
		feeds := &stubFeedLister{active: []*domain.Feed{
			{ID: "feed-1", Name: "Example", URL: "https://example.com/rss"},
			{ID: "feed-2", Name: "Other", URL: "https://other.test/feed"},
		}}
		sender := &stubSender{}
		p := newPipelineJobs(feeds, sender)

		require.NoError(t, p.EnqueueFeedFetches(context.Background()))

		require.Len(t, sender.sent, 2)
		first := sender.sent[0].(*domain.FeedFetchMessage)
		assert.Equal(t, "https://example.com/rss", first.FeedURL)
		assert.Equal(t, "feed-1", first.FeedID)
		assert.Equal(t, domain.ActionFetch, first.Action)
	})

	t.Run("should skip the batch when no feeds are active", func(t *testing.T) {
		sender := &stubSender{}
		p := newPipelineJobs(&stubFeedLister{}, sender)

		require.NoError(t, p.EnqueueFeedFetches(context.Background()))
		assert.Empty(t, sender.sent)
	})

	t.Run("should propagate listing failures", func(t *testing.T) {
		p := newPipelineJobs(&stubFeedLister{listErr: errors.New("db down")}, &stubSender{})

		require.Error(t, p.EnqueueFeedFetches(context.Background()))
	})

	t.Run("should initiate the previous UTC day", func(t *testing.T) {
		sender := &stubSender{}
		p := newPipelineJobs(&stubFeedLister{}, sender)

		require.NoError(t, p.EnqueueDailyInitiate(context.Background()))

		require.Len(t, sender.sent, 1)
		assert.Equal(t, "2025-06-01", sender.sent[0].(*domain.DailyInitiateMessage).Date)
	})

	t.Run("should digest the week ending yesterday", func(t *testing.T) {
		sender := &stubSender{}
		p := newPipelineJobs(&stubFeedLister{}, sender)

		require.NoError(t, p.EnqueueWeeklyDigest(context.Background()))

		require.Len(t, sender.sent, 1)
		assert.Equal(t, "2025-06-01", sender.sent[0].(*domain.WeeklyDigestMessage).WeekEndDate)
	})
}
