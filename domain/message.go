package domain

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// StreamKey identifies one pipeline stage's queue.
type StreamKey string

const (
	// StreamFeedFetch carries per-feed fetch and validate tasks.
	StreamFeedFetch StreamKey = "digest:queue:feed-fetch"
	// StreamDailyInitiate carries one task per day to fan out processing.
	StreamDailyInitiate StreamKey = "digest:queue:daily-initiate"
	// StreamDailyProcess carries one task per (feed, day) group.
	StreamDailyProcess StreamKey = "digest:queue:daily-process"
	// StreamWeeklyDigest carries the weekly recap task.
	StreamWeeklyDigest StreamKey = "digest:queue:weekly-digest"
)

// String returns the stream key as a string.
func (k StreamKey) String() string { return string(k) }

// IsValid reports whether the key names a known pipeline stage.
func (k StreamKey) IsValid() bool {
	switch k {
	case StreamFeedFetch, StreamDailyInitiate, StreamDailyProcess, StreamWeeklyDigest:
		return true
	}
	return false
}

// Envelope carries the tracing fields every queue message includes.
type Envelope struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// Ensure fills in a fresh request ID and timestamp where absent.
func (e *Envelope) Ensure(now time.Time) {
	if e.RequestID == "" {
		e.RequestID = uuid.New().String()
	}
	if e.Timestamp == "" {
		e.Timestamp = now.UTC().Format(time.RFC3339)
	}
}

func (e *Envelope) validate() error {
	if e.RequestID == "" {
		return errors.New("requestId is required")
	}
	if e.Timestamp == "" {
		return errors.New("timestamp is required")
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("timestamp is not RFC 3339: %w", err)
	}
	return nil
}

// Message is a typed queue message bound to one stream. Every message is
// schema-validated on both the producer and consumer side before any side
// effect.
type Message interface {
	Stream() StreamKey
	Validate() error
	Env() *Envelope
}

// FeedFetchAction discriminates the two feed-fetch operations.
type FeedFetchAction string

const (
	// ActionFetch retrieves and stores new articles.
	ActionFetch FeedFetchAction = "fetch"
	// ActionValidate performs the lightweight fetch-and-sniff check.
	ActionValidate FeedFetchAction = "validate"
)

// FeedFetchMessage is the feed ingestion task.
type FeedFetchMessage struct {
	Envelope
	FeedURL  string          `json:"feedUrl"`
	FeedName string          `json:"feedName"`
	FeedID   string          `json:"feedId,omitempty"`
	Action   FeedFetchAction `json:"action"`
}

// Stream implements Message.
func (m *FeedFetchMessage) Stream() StreamKey { return StreamFeedFetch }

// Env implements Message.
func (m *FeedFetchMessage) Env() *Envelope { return &m.Envelope }

// Validate implements Message.
func (m *FeedFetchMessage) Validate() error {
	if err := m.Envelope.validate(); err != nil {
		return err
	}
	if m.FeedURL == "" {
		return errors.New("feedUrl is required")
	}
	u, err := url.Parse(m.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feedUrl is not a valid http(s) URL: %s", m.FeedURL)
	}
	if m.FeedName == "" {
		return errors.New("feedName is required")
	}
	if m.Action != ActionFetch && m.Action != ActionValidate {
		return fmt.Errorf("action must be %q or %q", ActionFetch, ActionValidate)
	}
	return nil
}

// DailyInitiateMessage asks the initiator to fan out processing for a date.
type DailyInitiateMessage struct {
	Envelope
	Date     string `json:"date"`
	FeedName string `json:"feedName,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// Stream implements Message.
func (m *DailyInitiateMessage) Stream() StreamKey { return StreamDailyInitiate }

// Env implements Message.
func (m *DailyInitiateMessage) Env() *Envelope { return &m.Envelope }

// Validate implements Message.
func (m *DailyInitiateMessage) Validate() error {
	if err := m.Envelope.validate(); err != nil {
		return err
	}
	return validateDate(m.Date)
}

// DailyProcessMessage is one feed-group processing task produced by the
// initiator's fan-out.
type DailyProcessMessage struct {
	Envelope
	Date       string   `json:"date"`
	FeedName   string   `json:"feedName"`
	ArticleIDs []string `json:"articleIds"`
	Force      bool     `json:"force,omitempty"`
}

// Stream implements Message.
func (m *DailyProcessMessage) Stream() StreamKey { return StreamDailyProcess }

// Env implements Message.
func (m *DailyProcessMessage) Env() *Envelope { return &m.Envelope }

// Validate implements Message.
func (m *DailyProcessMessage) Validate() error {
	if err := m.Envelope.validate(); err != nil {
		return err
	}
	if err := validateDate(m.Date); err != nil {
		return err
	}
	if m.FeedName == "" {
		return errors.New("feedName is required")
	}
	if len(m.ArticleIDs) == 0 {
		return errors.New("articleIds must not be empty")
	}
	for _, id := range m.ArticleIDs {
		if id == "" {
			return errors.New("articleIds must not contain empty IDs")
		}
	}
	return nil
}

// WeeklyDigestMessage triggers the consolidated weekly digest consumer.
type WeeklyDigestMessage struct {
	Envelope
	WeekEndDate     string `json:"weekEndDate"`
	ForceRegenerate bool   `json:"forceRegenerate,omitempty"`
}

// Stream implements Message.
func (m *WeeklyDigestMessage) Stream() StreamKey { return StreamWeeklyDigest }

// Env implements Message.
func (m *WeeklyDigestMessage) Env() *Envelope { return &m.Envelope }

// Validate implements Message.
func (m *WeeklyDigestMessage) Validate() error {
	if err := m.Envelope.validate(); err != nil {
		return err
	}
	return validateDate(m.WeekEndDate)
}

func validateDate(date string) error {
	if date == "" {
		return errors.New("date is required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %s", date)
	}
	return nil
}
