// Package service implements the pipeline stages: feed ingestion, daily
// summary initiation and processing, and the weekly digest consumer.
package service

import (
	"fmt"
	"strings"

	"feed-digest/domain"
)

// Prompt construction limits. Content is truncated per-article and the
// whole prompt is capped so a noisy week cannot blow the model's context.
const (
	maxArticlesPerPrompt  = 20
	maxArticleChars       = 2000
	maxRelatedSummaries   = 5
	maxDailySummaryChars  = 3000
	maxWeeklyPromptChars  = 48000
	truncationMarker      = "\n\n[...truncated]"
	belowTheFoldHeader    = "## Below the Fold"
	soWhatHeader          = "## So What?"
	defaultWeeklyTitle    = "Weekly Digest"
)

const dailyPromptTemplate = `You are an editor writing a concise daily news summary for the feed "{{feedName}}" covering {{date}}.

Summarize the articles below into well-organized markdown. Lead with the most significant story. Group related items. Keep it under 500 words.

{{#articles}}
### {{title}}
Link: {{link}}
{{content}}

{{/articles}}`

const relatedContextTemplate = `
## Related coverage from recent days
{{#related}}
### {{date}}
{{content}}

{{/related}}`

const weeklyPromptTemplate = `You are an editor assembling a weekly news recap from the daily summaries below.

Write a markdown recap with three parts: the main recap first, then a section headed "` + belowTheFoldHeader + `" for secondary stories, then a section headed "` + soWhatHeader + `" with analysis of why this week mattered.
{{recentCoverage}}
{{#dailies}}
### {{date}} — {{feed}}
{{content}}

{{/dailies}}`

const topicsPromptTemplate = `Extract the 3 to 8 most important topics from the recap below. Respond with a JSON object of the form {"topics": ["..."]} and nothing else.

{{recap}}`

const titlePromptTemplate = `Write a single short, punchy newsletter title (under 80 characters) for the weekly recap below. Respond with the title only, no quotes.

{{recap}}`

// renderTemplate substitutes {{name}} placeholders in a trusted template.
// A {{#section}}...{{/section}} block is repeated once per item, with the
// item's own placeholders substituted inside the block.
func renderTemplate(template string, values map[string]string, sections map[string][]map[string]string) string {
	out := template

	for name, items := range sections {
		open := "{{#" + name + "}}"
		close := "{{/" + name + "}}"

		start := strings.Index(out, open)
		end := strings.Index(out, close)
		if start < 0 || end < 0 || end < start {
			continue
		}

		block := out[start+len(open) : end]
		var b strings.Builder
		for _, item := range items {
			b.WriteString(substitute(block, item))
		}
		out = out[:start] + b.String() + out[end+len(close):]
	}

	return substitute(out, values)
}

func substitute(s string, values map[string]string) string {
	for key, value := range values {
		s = strings.ReplaceAll(s, "{{"+key+"}}", value)
	}
	return s
}

// truncate caps s at limit runes, appending the truncation marker when
// anything was cut.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}

// articleBody prefers full content, falling back to the snippet.
func articleBody(a *domain.ArticleWithFeed) string {
	if strings.TrimSpace(a.Content) != "" {
		return a.Content
	}
	return a.Snippet
}

// buildDailyPrompt assembles the daily generation prompt from the feed's
// articles plus prior-summary context, bounded per the prompt limits.
func buildDailyPrompt(feedName, displayDate string, articles []*domain.ArticleWithFeed, related []*domain.DailySummary) string {
	capped := articles
	if len(capped) > maxArticlesPerPrompt {
		capped = capped[:maxArticlesPerPrompt]
	}

	items := make([]map[string]string, 0, len(capped))
	for _, a := range capped {
		items = append(items, map[string]string{
			"title":   a.Title,
			"link":    a.Link,
			"content": truncate(articleBody(a), maxArticleChars),
		})
	}

	prompt := renderTemplate(dailyPromptTemplate,
		map[string]string{"feedName": feedName, "date": displayDate},
		map[string][]map[string]string{"articles": items})

	if len(related) > 0 {
		capped := related
		if len(capped) > maxRelatedSummaries {
			capped = capped[:maxRelatedSummaries]
		}
		relItems := make([]map[string]string, 0, len(capped))
		for _, s := range capped {
			relItems = append(relItems, map[string]string{
				"date":    s.SummaryDate.Format(domain.DateLayout),
				"content": truncate(s.Markdown, maxDailySummaryChars),
			})
		}
		prompt += renderTemplate(relatedContextTemplate, nil,
			map[string][]map[string]string{"related": relItems})
	}

	return prompt
}

// buildWeeklyPrompt assembles the recap prompt from the week's daily
// summaries and the recent-coverage context, with a total size cap.
func buildWeeklyPrompt(dailies []*domain.DailySummary, feedNames map[string]string, recentCoverage string) string {
	items := make([]map[string]string, 0, len(dailies))
	for _, s := range dailies {
		feed := feedNames[s.FeedID]
		if feed == "" {
			feed = s.FeedID
		}
		items = append(items, map[string]string{
			"date":    s.SummaryDate.Format(domain.DateLayout),
			"feed":    feed,
			"content": truncate(s.Markdown, maxDailySummaryChars),
		})
	}

	coverage := ""
	if recentCoverage != "" {
		coverage = "\n## Recent coverage (avoid repeating)\n" + recentCoverage + "\n"
	}

	prompt := renderTemplate(weeklyPromptTemplate,
		map[string]string{"recentCoverage": coverage},
		map[string][]map[string]string{"dailies": items})

	return truncate(prompt, maxWeeklyPromptChars)
}

func buildTopicsPrompt(recap string) string {
	return renderTemplate(topicsPromptTemplate,
		map[string]string{"recap": truncate(recap, maxWeeklyPromptChars/4)}, nil)
}

func buildTitlePrompt(recap string) string {
	return renderTemplate(titlePromptTemplate,
		map[string]string{"recap": truncate(recap, maxWeeklyPromptChars/4)}, nil)
}

// fallbackDailySummary builds the deterministic bullet-list summary used
// when the model returns no usable text.
func fallbackDailySummary(feedName, displayDate string, articles []*domain.ArticleWithFeed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", feedName, displayDate)
	for _, a := range articles {
		fmt.Fprintf(&b, "- [%s](%s)", a.Title, a.Link)
		if snippet := strings.TrimSpace(a.Snippet); snippet != "" {
			fmt.Fprintf(&b, " — %s", truncate(snippet, 200))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// splitRecapSections parses the generated recap into its three sections.
// Anything before the first known header is the main recap body.
func splitRecapSections(recap string) (main, belowTheFold, soWhat string) {
	rest := recap

	if idx := strings.Index(rest, belowTheFoldHeader); idx >= 0 {
		main = strings.TrimSpace(rest[:idx])
		rest = rest[idx+len(belowTheFoldHeader):]
	} else if idx := strings.Index(rest, soWhatHeader); idx >= 0 {
		return strings.TrimSpace(rest[:idx]), "", strings.TrimSpace(rest[idx+len(soWhatHeader):])
	} else {
		return strings.TrimSpace(rest), "", ""
	}

	if idx := strings.Index(rest, soWhatHeader); idx >= 0 {
		belowTheFold = strings.TrimSpace(rest[:idx])
		soWhat = strings.TrimSpace(rest[idx+len(soWhatHeader):])
	} else {
		belowTheFold = strings.TrimSpace(rest)
	}

	return main, belowTheFold, soWhat
}
