package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"feed-digest/config"
	"feed-digest/domain"
	"feed-digest/driver"
	"feed-digest/repository"
	pipeerr "feed-digest/utils/errors"
)

// relatedContextWindow is how far back before the batch's oldest article
// the processor looks for prior summaries to give the model continuity.
const relatedContextWindow = 7 * 24 * time.Hour

// DailyProcessor generates and persists one summary per (feed, day) task.
// The (feedId, summaryDate) unique key is the idempotency boundary: a
// redelivered task finds the existing row and returns without side effects.
type DailyProcessor struct {
	feeds     repository.FeedRepository
	articles  repository.ArticleRepository
	summaries repository.DailySummaryRepository
	generator TextGenerator
	llmCfg    config.LLMConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewDailyProcessor creates the daily-summary processor stage.
func NewDailyProcessor(
	feeds repository.FeedRepository,
	articles repository.ArticleRepository,
	summaries repository.DailySummaryRepository,
	generator TextGenerator,
	llmCfg config.LLMConfig,
	logger *slog.Logger,
) *DailyProcessor {
	return &DailyProcessor{
		feeds:     feeds,
		articles:  articles,
		summaries: summaries,
		generator: generator,
		llmCfg:    llmCfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Process handles one (feed, day) summarization task end to end.
func (s *DailyProcessor) Process(ctx context.Context, msg *domain.DailyProcessMessage) error {
	started := s.now()

	day, _, err := domain.DayBounds(msg.Date)
	if err != nil {
		return pipeerr.NewValidationError("processor.process", err.Error())
	}

	if !msg.Force {
		feed, err := s.feeds.FindByName(ctx, msg.FeedName)
		if err != nil {
			return err
		}
		if feed != nil {
			exists, err := s.summaries.Exists(ctx, feed.ID, day)
			if err != nil {
				return err
			}
			if exists {
				s.logger.InfoContext(ctx, "daily summary already exists, skipping",
					"feed", msg.FeedName,
					"date", msg.Date,
					"request_id", msg.RequestID)
				return nil
			}
		}
	}

	batch, err := s.articles.FindByIDs(ctx, msg.ArticleIDs)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		s.logger.InfoContext(ctx, "no articles found for task, skipping",
			"feed", msg.FeedName,
			"date", msg.Date,
			"request_id", msg.RequestID)
		return nil
	}

	feedID := batch[0].FeedID

	// Articles arrive newest-first, so the oldest anchors the context
	// lookback window.
	oldest := batch[len(batch)-1].PublishedAt
	related, err := s.summaries.FindRecent(ctx, feedID, oldest.Add(-relatedContextWindow), oldest, maxRelatedSummaries)
	if err != nil {
		return err
	}

	prompt := buildDailyPrompt(msg.FeedName, msg.Date, batch, related)

	text, err := s.generator.Generate(ctx, prompt, driver.GenerateParams{
		MaxTokens:   s.llmCfg.DailyMaxTokens,
		Temperature: s.llmCfg.Temperature,
		Effort:      "low",
	})
	if err != nil {
		return s.fail(msg, started, len(batch),
			pipeerr.NewSummarizationError("processor.process", err))
	}

	if strings.TrimSpace(text) == "" {
		s.logger.WarnContext(ctx, "model returned empty summary, using fallback",
			"feed", msg.FeedName,
			"date", msg.Date,
			"request_id", msg.RequestID)
		text = fallbackDailySummary(msg.FeedName, msg.Date, batch)
	}

	summary := &domain.DailySummary{
		FeedID:       feedID,
		SummaryDate:  day,
		Markdown:     text,
		ArticleCount: len(batch),
	}

	if err := s.summaries.Create(ctx, summary, msg.ArticleIDs); err != nil {
		// A concurrent processor for the same (feed, day) won the race.
		// The summary exists, so this delivery is done.
		if pipeerr.IsDuplicate(err) {
			s.logger.InfoContext(ctx, "daily summary created concurrently, treating as done",
				"feed", msg.FeedName,
				"date", msg.Date,
				"request_id", msg.RequestID)
			return nil
		}
		return s.fail(msg, started, len(batch), err)
	}

	s.logger.InfoContext(ctx, "daily summary created",
		"feed", msg.FeedName,
		"date", msg.Date,
		"summary_id", summary.ID,
		"articles", len(batch),
		"duration_ms", s.now().Sub(started).Milliseconds(),
		"request_id", msg.RequestID)

	return nil
}

// fail attaches the task's identifying context to a pipeline error before
// propagating it for retry classification.
func (s *DailyProcessor) fail(msg *domain.DailyProcessMessage, started time.Time, count int, err error) error {
	var pe *pipeerr.PipelineError
	if errors.As(err, &pe) {
		return pe.WithContext("feed", msg.FeedName).
			WithContext("date", msg.Date).
			WithContext("article_count", count).
			WithContext("duration_ms", s.now().Sub(started).Milliseconds())
	}
	return err
}
