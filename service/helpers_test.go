package service

import (
	"context"
	"log/slog"
	"time"

	"feed-digest/domain"
	"feed-digest/driver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// stubFeedRepo implements repository.FeedRepository.
type stubFeedRepo struct {
	feedsByURL  map[string]*domain.Feed
	feedsByName map[string]*domain.Feed
	active      []*domain.Feed
	created     []*domain.Feed
	fetchOK     []string
	fetchFailed []string
	validated   []string
	findErr     error
}

func (s *stubFeedRepo) FindByURL(_ context.Context, url string) (*domain.Feed, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.feedsByURL[url], nil
}

func (s *stubFeedRepo) FindByName(_ context.Context, name string) (*domain.Feed, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.feedsByName[name], nil
}

func (s *stubFeedRepo) Create(_ context.Context, feed *domain.Feed) error {
	feed.ID = "feed-new"
	feed.CreatedAt = time.Now()
	s.created = append(s.created, feed)
	if s.feedsByURL == nil {
		s.feedsByURL = map[string]*domain.Feed{}
	}
	s.feedsByURL[feed.URL] = feed
	return nil
}

func (s *stubFeedRepo) ListActive(context.Context) ([]*domain.Feed, error) {
	return s.active, nil
}

func (s *stubFeedRepo) UpdateFetchSuccess(_ context.Context, feedID string, _ time.Time) error {
	s.fetchOK = append(s.fetchOK, feedID)
	return nil
}

func (s *stubFeedRepo) UpdateFetchFailure(_ context.Context, feedID string, _ string) error {
	s.fetchFailed = append(s.fetchFailed, feedID)
	return nil
}

func (s *stubFeedRepo) UpdateValidation(_ context.Context, feedID string, _ bool, _, _ string) error {
	s.validated = append(s.validated, feedID)
	return nil
}

// stubArticleRepo implements repository.ArticleRepository.
type stubArticleRepo struct {
	existing   map[string]struct{}
	stored     []*domain.Article
	byRange    []*domain.ArticleWithFeed
	byIDs      []*domain.ArticleWithFeed
	rangeErr   error
	lastFilter string
}

func (s *stubArticleRepo) ExistingLinks(_ context.Context, links []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, l := range links {
		if _, ok := s.existing[l]; ok {
			out[l] = struct{}{}
		}
	}
	return out, nil
}

func (s *stubArticleRepo) CreateBatch(_ context.Context, articles []*domain.Article) (int, error) {
	s.stored = append(s.stored, articles...)
	return len(articles), nil
}

func (s *stubArticleRepo) FindByDateRange(_ context.Context, _, _ time.Time, feedName string) ([]*domain.ArticleWithFeed, error) {
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	s.lastFilter = feedName
	return s.byRange, nil
}

func (s *stubArticleRepo) FindByIDs(context.Context, []string) ([]*domain.ArticleWithFeed, error) {
	return s.byIDs, nil
}

// stubDailyRepo implements repository.DailySummaryRepository.
type stubDailyRepo struct {
	exists    bool
	existsErr error
	createErr error
	created   []*domain.DailySummary
	relations [][]string
	recent    []*domain.DailySummary
	inRange   []*domain.DailySummary
}

func (s *stubDailyRepo) Exists(context.Context, string, time.Time) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubDailyRepo) Create(_ context.Context, summary *domain.DailySummary, articleIDs []string) error {
	if s.createErr != nil {
		return s.createErr
	}
	summary.ID = "sum-new"
	s.created = append(s.created, summary)
	s.relations = append(s.relations, articleIDs)
	return nil
}

func (s *stubDailyRepo) FindRecent(context.Context, string, time.Time, time.Time, int) ([]*domain.DailySummary, error) {
	return s.recent, nil
}

func (s *stubDailyRepo) FindByDateRange(context.Context, time.Time, time.Time) ([]*domain.DailySummary, error) {
	return s.inRange, nil
}

// stubWeeklyRepo implements repository.WeeklySummaryRepository.
type stubWeeklyRepo struct {
	createErr  error
	created    []*domain.WeeklySummary
	deleted    int
	sentIDs    []string
	markErr    error
}

func (s *stubWeeklyRepo) Create(_ context.Context, summary *domain.WeeklySummary, _ []string) error {
	if s.createErr != nil {
		return s.createErr
	}
	summary.ID = "week-new"
	s.created = append(s.created, summary)
	return nil
}

func (s *stubWeeklyRepo) DeleteByWeek(context.Context, time.Time, time.Time) error {
	s.deleted++
	return nil
}

func (s *stubWeeklyRepo) MarkSent(_ context.Context, id string, _ time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

// stubFetcher implements FeedFetcher.
type stubFetcher struct {
	items    []domain.FeedItem
	fetchErr error
	verdict  domain.FeedValidation
}

func (s *stubFetcher) FetchItems(context.Context, string) ([]domain.FeedItem, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.items, nil
}

func (s *stubFetcher) Validate(context.Context, string) domain.FeedValidation {
	return s.verdict
}

// stubGenerator implements TextGenerator. Responses are served in call
// order; topics feed GenerateJSON.
type stubGenerator struct {
	texts   []string
	errs    []error
	topics  []string
	jsonErr error
	prompts []string
	calls   int
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, _ driver.GenerateParams) (string, error) {
	s.prompts = append(s.prompts, prompt)
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.texts) {
		return s.texts[i], nil
	}
	return "", nil
}

func (s *stubGenerator) GenerateJSON(_ context.Context, _ string, _ driver.GenerateParams, out any) error {
	if s.jsonErr != nil {
		return s.jsonErr
	}
	if tr, ok := out.(*topicsResponse); ok {
		tr.Topics = s.topics
	}
	return nil
}

// stubSender implements MessageSender.
type stubSender struct {
	sent    []domain.Message
	sendErr error
}

func (s *stubSender) Send(_ context.Context, msg domain.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubSender) SendBatch(_ context.Context, msgs []domain.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msgs...)
	return nil
}

// stubArchive implements ArchiveStore.
type stubArchive struct {
	entries []domain.DigestArchiveEntry
	recent  []*domain.DigestArchiveEntry
	putErr  error
	listErr error
}

func (s *stubArchive) Put(_ context.Context, _ string, entry domain.DigestArchiveEntry) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubArchive) Get(context.Context, string) (*domain.DigestArchiveEntry, error) {
	return nil, nil
}

func (s *stubArchive) ListRecent(context.Context, int) ([]*domain.DigestArchiveEntry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.recent, nil
}

// stubEmail implements EmailSender.
type stubEmail struct {
	sent    int
	sendErr error
	lastTo  []string
	lastSub string
}

func (s *stubEmail) Send(_ context.Context, recipients []string, subject, _ string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent++
	s.lastTo = recipients
	s.lastSub = subject
	return "msg-1", nil
}
