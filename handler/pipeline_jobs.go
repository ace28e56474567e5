package handler

import (
	"context"
	"log/slog"
	"time"

	"feed-digest/config"
	"feed-digest/domain"
	"feed-digest/repository"
)

// PipelineJobs wires the recurring pipeline triggers into the scheduler.
type PipelineJobs struct {
	feeds      repository.FeedRepository
	dispatcher MessageSender
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipelineJobs creates the recurring trigger jobs.
func NewPipelineJobs(feeds repository.FeedRepository, dispatcher MessageSender, logger *slog.Logger) *PipelineJobs {
	return &PipelineJobs{
		feeds:      feeds,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Register schedules the three recurring triggers per configuration.
func (p *PipelineJobs) Register(ctx context.Context, scheduler JobScheduler, cfg config.ScheduleConfig) error {
	if !cfg.Enabled {
		p.logger.Info("scheduler disabled, pipeline runs on manual triggers only")
		return nil
	}

	if err := scheduler.Schedule(ctx, "feed-fetch", cfg.FeedFetchInterval, p.EnqueueFeedFetches); err != nil {
		return err
	}
	if err := scheduler.Schedule(ctx, "daily-summary", cfg.DailyInterval, p.EnqueueDailyInitiate); err != nil {
		return err
	}
	return scheduler.Schedule(ctx, "weekly-digest", cfg.WeeklyInterval, p.EnqueueWeeklyDigest)
}

// EnqueueFeedFetches dispatches one fetch task per active feed.
func (p *PipelineJobs) EnqueueFeedFetches(ctx context.Context) error {
	feeds, err := p.feeds.ListActive(ctx)
	if err != nil {
		return err
	}

	msgs := make([]domain.Message, 0, len(feeds))
	for _, f := range feeds {
		msgs = append(msgs, &domain.FeedFetchMessage{
			FeedURL:  f.URL,
			FeedName: f.Name,
			FeedID:   f.ID,
			Action:   domain.ActionFetch,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.dispatcher.SendBatch(ctx, msgs)
}

// EnqueueDailyInitiate dispatches initiation for the previous UTC day, the
// most recent day whose article window is complete.
func (p *PipelineJobs) EnqueueDailyInitiate(ctx context.Context) error {
	date := p.now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)
	return p.dispatcher.Send(ctx, &domain.DailyInitiateMessage{Date: date})
}

// EnqueueWeeklyDigest dispatches a digest for the week ending yesterday.
func (p *PipelineJobs) EnqueueWeeklyDigest(ctx context.Context) error {
	weekEnd := p.now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)
	return p.dispatcher.Send(ctx, &domain.WeeklyDigestMessage{WeekEndDate: weekEnd})
}
