package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feed-digest/domain"
	pipeerr "feed-digest/utils/errors"
)

const (
	fetchTimeout    = 30 * time.Second
	validateTimeout = 10 * time.Second
	// validateBodyCap bounds how much of the response the sniff reads.
	validateBodyCap = 256 * 1024
)

// FeedFetcher retrieves and parses RSS/Atom feeds.
type FeedFetcher struct {
	parser *gofeed.Parser
	client *http.Client
	logger *slog.Logger
}

// NewFeedFetcher creates a fetcher with a tuned HTTP client.
func NewFeedFetcher(logger *slog.Logger) *FeedFetcher {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 30 * time.Second,
		},
		Timeout: fetchTimeout,
	}

	parser := gofeed.NewParser()
	parser.Client = client

	return &FeedFetcher{parser: parser, client: client, logger: logger}
}

// FetchItems retrieves and parses the feed at the given URL. A feed with
// zero items returns an empty slice, not an error.
func (f *FeedFetcher) FetchItems(ctx context.Context, feedURL string) ([]domain.FeedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pipeerr.NewTimeoutError("feed.fetch", err)
		}
		return nil, pipeerr.NewFeedError("feed.fetch", err)
	}

	items := make([]domain.FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}

		creator := ""
		if len(item.Authors) > 0 {
			creator = item.Authors[0].Name
		}

		items = append(items, domain.FeedItem{
			Title:       item.Title,
			Link:        item.Link,
			Content:     item.Content,
			Snippet:     item.Description,
			Creator:     creator,
			GUID:        item.GUID,
			PublishedAt: published,
		})
	}

	f.logger.InfoContext(ctx, "feed fetched", "url", feedURL, "items", len(items))

	return items, nil
}

// Validate performs a lightweight fetch-and-sniff check against the URL.
// It never returns an error; it always resolves to a verdict.
func (f *FeedFetcher) Validate(ctx context.Context, feedURL string) domain.FeedValidation {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return domain.FeedValidation{Valid: false, Error: fmt.Sprintf("invalid URL: %v", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.FeedValidation{Valid: false, Error: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return domain.FeedValidation{Valid: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, validateBodyCap))
	if err != nil {
		return domain.FeedValidation{Valid: false, Error: fmt.Sprintf("read failed: %v", err)}
	}

	content := string(body)
	if !looksLikeFeed(content) {
		return domain.FeedValidation{Valid: false, Error: "response does not look like an RSS/Atom feed"}
	}

	return domain.FeedValidation{Valid: true, Title: extractFeedTitle(content)}
}

func looksLikeFeed(content string) bool {
	head := strings.TrimSpace(content)
	if !strings.HasPrefix(head, "<?xml") && !strings.HasPrefix(head, "<rss") && !strings.HasPrefix(head, "<feed") {
		return false
	}
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<rss") ||
		strings.Contains(lower, "<channel") ||
		strings.Contains(lower, "http://www.w3.org/2005/atom")
}

// extractFeedTitle pulls the first <title> element out of the sniffed body,
// if one fits inside the cap.
func extractFeedTitle(content string) string {
	start := strings.Index(content, "<title>")
	if start < 0 {
		return ""
	}
	start += len("<title>")
	end := strings.Index(content[start:], "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(content[start : start+end])
}
