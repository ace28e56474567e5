package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"feed-digest/config"
	"feed-digest/domain"
	"feed-digest/driver"
	"feed-digest/repository"
	pipeerr "feed-digest/utils/errors"
)

// WeeklyDigest assembles the week's daily summaries into one recap, runs a
// single linear pipeline per message, and best-effort archives and emails
// the result. Only the recap's durability can fail the unit of work.
type WeeklyDigest struct {
	feeds     repository.FeedRepository
	dailies   repository.DailySummaryRepository
	weeklies  repository.WeeklySummaryRepository
	generator TextGenerator
	archive   ArchiveStore
	email     EmailSender
	llmCfg    config.LLMConfig
	emailCfg  config.EmailConfig
	ctxWeeks  int
	logger    *slog.Logger
	now       func() time.Time
}

// NewWeeklyDigest creates the weekly-digest consumer stage.
func NewWeeklyDigest(
	feeds repository.FeedRepository,
	dailies repository.DailySummaryRepository,
	weeklies repository.WeeklySummaryRepository,
	generator TextGenerator,
	archive ArchiveStore,
	email EmailSender,
	llmCfg config.LLMConfig,
	emailCfg config.EmailConfig,
	archiveCfg config.ArchiveConfig,
	logger *slog.Logger,
) *WeeklyDigest {
	return &WeeklyDigest{
		feeds:     feeds,
		dailies:   dailies,
		weeklies:  weeklies,
		generator: generator,
		archive:   archive,
		email:     email,
		llmCfg:    llmCfg,
		emailCfg:  emailCfg,
		ctxWeeks:  archiveCfg.ContextWeeks,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate produces the weekly digest for the seven-day window ending at
// the message's weekEndDate.
func (s *WeeklyDigest) Generate(ctx context.Context, msg *domain.WeeklyDigestMessage) error {
	weekStartDay, weekEnd, err := domain.DayBounds(msg.WeekEndDate)
	if err != nil {
		return pipeerr.NewValidationError("weekly.generate", err.Error())
	}
	weekStart := domain.WeekStart(weekStartDay)

	dailies, err := s.dailies.FindByDateRange(ctx, weekStart, weekEnd)
	if err != nil {
		return err
	}
	if len(dailies) == 0 {
		return pipeerr.NewNotFoundError("weekly.generate",
			fmt.Sprintf("no daily summaries in week ending %s", msg.WeekEndDate))
	}

	recentCoverage := s.recentCoverage(ctx, msg.RequestID)

	prompt := buildWeeklyPrompt(dailies, s.feedNames(ctx), recentCoverage)

	recap, err := s.generator.Generate(ctx, prompt, driver.GenerateParams{
		MaxTokens:   s.llmCfg.WeeklyMaxTokens,
		Temperature: s.llmCfg.Temperature,
		Effort:      "high",
	})
	if err != nil {
		return pipeerr.NewSummarizationError("weekly.generate", err).
			WithContext("week_end", msg.WeekEndDate).
			WithContext("daily_count", len(dailies))
	}
	if strings.TrimSpace(recap) == "" {
		return pipeerr.NewSummarizationError("weekly.generate",
			domain.ErrEmptyGeneration).
			WithContext("week_end", msg.WeekEndDate)
	}

	topics := s.extractTopics(ctx, recap, msg.RequestID)
	title := s.generateTitle(ctx, recap, msg.RequestID)

	main, belowTheFold, soWhat := splitRecapSections(recap)

	if msg.ForceRegenerate {
		if err := s.weeklies.DeleteByWeek(ctx, weekStart, weekEnd); err != nil {
			return err
		}
	}

	summary := &domain.WeeklySummary{
		WeekStart:    weekStart,
		WeekEnd:      weekEnd,
		Title:        title,
		Recap:        main,
		BelowTheFold: belowTheFold,
		SoWhat:       soWhat,
		Topics:       topics,
	}

	dailyIDs := make([]string, 0, len(dailies))
	for _, d := range dailies {
		dailyIDs = append(dailyIDs, d.ID)
	}

	if err := s.weeklies.Create(ctx, summary, dailyIDs); err != nil {
		if pipeerr.IsDuplicate(err) {
			s.logger.InfoContext(ctx, "weekly digest already exists, skipping",
				"week_end", msg.WeekEndDate,
				"request_id", msg.RequestID)
			return nil
		}
		return err
	}

	s.archiveDigest(ctx, weekEnd, summary, msg.RequestID)
	s.sendDigestEmail(ctx, summary, msg.RequestID)

	s.logger.InfoContext(ctx, "weekly digest generated",
		"week_start", weekStart.Format(domain.DateLayout),
		"week_end", msg.WeekEndDate,
		"title", title,
		"dailies", len(dailies),
		"request_id", msg.RequestID)

	return nil
}

// feedNames resolves feed IDs to display names for the prompt. A lookup
// failure just means IDs are shown instead of names.
func (s *WeeklyDigest) feedNames(ctx context.Context) map[string]string {
	feeds, err := s.feeds.ListActive(ctx)
	if err != nil {
		return nil
	}
	names := make(map[string]string, len(feeds))
	for _, f := range feeds {
		names[f.ID] = f.Name
	}
	return names
}

// recentCoverage builds the "avoid repeating" context from prior archived
// digests. Best effort: any failure is logged and an empty string returned.
func (s *WeeklyDigest) recentCoverage(ctx context.Context, requestID string) string {
	entries, err := s.archive.ListRecent(ctx, s.ctxWeeks)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load prior digests for context",
			"error", err,
			"request_id", requestID)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Title, strings.Join(e.Topics, ", "))
	}
	return b.String()
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// extractTopics asks the model for a structured topic list. Failure falls
// back to an empty list rather than failing the digest.
func (s *WeeklyDigest) extractTopics(ctx context.Context, recap, requestID string) []string {
	var out topicsResponse
	err := s.generator.GenerateJSON(ctx, buildTopicsPrompt(recap), driver.GenerateParams{
		MaxTokens:   256,
		Temperature: 0,
		Effort:      "low",
		JSONMode:    true,
	}, &out)
	if err != nil {
		s.logger.WarnContext(ctx, "topic extraction failed",
			"error", err,
			"request_id", requestID)
		return []string{}
	}
	return out.Topics
}

// generateTitle asks the model for a newsletter title, falling back to the
// default on any failure. Title generation never fails the pipeline.
func (s *WeeklyDigest) generateTitle(ctx context.Context, recap, requestID string) string {
	title, err := s.generator.Generate(ctx, buildTitlePrompt(recap), driver.GenerateParams{
		MaxTokens:   64,
		Temperature: s.llmCfg.Temperature,
		Effort:      "low",
	})
	if err != nil || strings.TrimSpace(title) == "" {
		if err != nil {
			s.logger.WarnContext(ctx, "title generation failed, using default",
				"error", err,
				"request_id", requestID)
		}
		return defaultWeeklyTitle
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
}

// archiveDigest writes the digest to the historical-context store, keyed
// by ISO year-week. Best effort.
func (s *WeeklyDigest) archiveDigest(ctx context.Context, weekEnd time.Time, summary *domain.WeeklySummary, requestID string) {
	entry := domain.DigestArchiveEntry{
		Title:       summary.Title,
		Topics:      summary.Topics,
		Recap:       summary.Recap,
		GeneratedAt: s.now().UTC(),
	}
	if err := s.archive.Put(ctx, domain.ISOWeekKey(weekEnd), entry); err != nil {
		s.logger.WarnContext(ctx, "failed to archive digest",
			"week_key", domain.ISOWeekKey(weekEnd),
			"error", err,
			"request_id", requestID)
	}
}

// sendDigestEmail delivers the digest when email is configured and stamps
// sentAt on success. Delivery failure never fails the unit of work.
func (s *WeeklyDigest) sendDigestEmail(ctx context.Context, summary *domain.WeeklySummary, requestID string) {
	if !s.emailCfg.Enabled() {
		return
	}

	subject := summary.Title
	body := renderDigestHTML(summary)

	messageID, err := s.email.Send(ctx, s.emailCfg.Recipients, subject, body)
	if err != nil {
		s.logger.WarnContext(ctx, "digest email failed",
			"error", err,
			"request_id", requestID)
		return
	}

	sentAt := s.now()
	if err := s.weeklies.MarkSent(ctx, summary.ID, sentAt); err != nil {
		s.logger.WarnContext(ctx, "failed to stamp sentAt",
			"summary_id", summary.ID,
			"error", err,
			"request_id", requestID)
		return
	}
	summary.SentAt = &sentAt

	s.logger.InfoContext(ctx, "digest email sent",
		"message_id", messageID,
		"recipients", len(s.emailCfg.Recipients),
		"request_id", requestID)
}

// renderDigestHTML produces the email body. Markdown is delivered as
// preformatted text inside a minimal HTML shell; recipients' clients
// render it legibly without a markdown pipeline on our side.
func renderDigestHTML(summary *domain.WeeklySummary) string {
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: sans-serif; max-width: 42em; margin: 0 auto;\">")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(summary.Title))
	fmt.Fprintf(&b, "<p><em>%s &ndash; %s</em></p>",
		summary.WeekStart.Format("Jan 2"), summary.WeekEnd.Format("Jan 2, 2006"))

	writeSection := func(heading, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if heading != "" {
			fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(heading))
		}
		fmt.Fprintf(&b, "<div style=\"white-space: pre-wrap;\">%s</div>", html.EscapeString(text))
	}

	writeSection("", summary.Recap)
	writeSection("Below the Fold", summary.BelowTheFold)
	writeSection("So What?", summary.SoWhat)

	if len(summary.Topics) > 0 {
		fmt.Fprintf(&b, "<p><strong>Topics:</strong> %s</p>",
			html.EscapeString(strings.Join(summary.Topics, ", ")))
	}

	b.WriteString("</body></html>")
	return b.String()
}
