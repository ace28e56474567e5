package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"feed-digest/domain"
	"feed-digest/repository"
	pipeerr "feed-digest/utils/errors"
)

// DailyInitiator fans a date out into one processor task per feed that
// published articles that day.
type DailyInitiator struct {
	articles   repository.ArticleRepository
	dispatcher MessageSender
	logger     *slog.Logger
	now        func() time.Time
}

// NewDailyInitiator creates the daily-summary initiator stage.
func NewDailyInitiator(articles repository.ArticleRepository, dispatcher MessageSender, logger *slog.Logger) *DailyInitiator {
	return &DailyInitiator{
		articles:   articles,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Initiate queries the UTC day window for articles, groups them by feed,
// and dispatches one processor message per group. Every group shares the
// initiator's request ID so the fan-out stays correlated in the logs. All
// dispatches run concurrently and the stage fails as a whole if any one of
// them fails.
func (s *DailyInitiator) Initiate(ctx context.Context, msg *domain.DailyInitiateMessage) error {
	start, end, err := domain.DayBounds(msg.Date)
	if err != nil {
		return pipeerr.NewValidationError("initiator.initiate", err.Error())
	}

	matched, err := s.articles.FindByDateRange(ctx, start, end, msg.FeedName)
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		s.logger.InfoContext(ctx, "no articles for date, nothing to initiate",
			"date", msg.Date,
			"feed_filter", msg.FeedName,
			"request_id", msg.RequestID)
		return nil
	}

	groups := groupByFeed(matched)

	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		task := &domain.DailyProcessMessage{
			Envelope: domain.Envelope{
				RequestID: msg.RequestID,
				Timestamp: s.now().UTC().Format(time.RFC3339),
			},
			Date:       msg.Date,
			FeedName:   group.feedName,
			ArticleIDs: group.articleIDs,
			Force:      msg.Force,
		}
		g.Go(func() error {
			return s.dispatcher.Send(gctx, task)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "daily fan-out dispatched",
		"date", msg.Date,
		"groups", len(groups),
		"articles", len(matched),
		"request_id", msg.RequestID)

	return nil
}

type feedGroup struct {
	feedName   string
	articleIDs []string
}

// groupByFeed buckets articles by feed name, preserving the order feeds
// first appear in the result set.
func groupByFeed(articles []*domain.ArticleWithFeed) []*feedGroup {
	index := make(map[string]*feedGroup)
	groups := make([]*feedGroup, 0)
	for _, a := range articles {
		group, ok := index[a.FeedName]
		if !ok {
			group = &feedGroup{feedName: a.FeedName}
			index[a.FeedName] = group
			groups = append(groups, group)
		}
		group.articleIDs = append(group.articleIDs, a.ID)
	}
	return groups
}
