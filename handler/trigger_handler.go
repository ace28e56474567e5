// Package handler provides the HTTP trigger surface and the time-based
// job scheduler for the digest pipeline.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"feed-digest/domain"
)

// MessageSender publishes typed messages to the pipeline streams.
type MessageSender interface {
	Send(ctx context.Context, msg domain.Message) error
	SendBatch(ctx context.Context, msgs []domain.Message) error
}

// triggerResponse is the JSON envelope every trigger endpoint returns.
type triggerResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TriggerHandler enqueues each stage's initiating message on demand.
type TriggerHandler struct {
	dispatcher MessageSender
	now        func() time.Time
}

// NewTriggerHandler creates the manual trigger handler.
func NewTriggerHandler(dispatcher MessageSender) *TriggerHandler {
	return &TriggerHandler{dispatcher: dispatcher, now: time.Now}
}

type feedFetchRequest struct {
	FeedURL  string `json:"feedUrl"`
	FeedName string `json:"feedName"`
	FeedID   string `json:"feedId,omitempty"`
	Action   string `json:"action,omitempty"`
}

// TriggerFeedFetch enqueues a feed-fetch task.
func (h *TriggerHandler) TriggerFeedFetch(c echo.Context) error {
	var req feedFetchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	action := domain.FeedFetchAction(req.Action)
	if req.Action == "" {
		action = domain.ActionFetch
	}

	msg := &domain.FeedFetchMessage{
		FeedURL:  req.FeedURL,
		FeedName: req.FeedName,
		FeedID:   req.FeedID,
		Action:   action,
	}
	return h.send(c, msg, "feed-fetch task enqueued")
}

type dailySummaryRequest struct {
	Date     string `json:"date,omitempty"`
	FeedName string `json:"feedName,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// TriggerDailySummary enqueues a daily-summary initiation. The date
// defaults to the current UTC day.
func (h *TriggerHandler) TriggerDailySummary(c echo.Context) error {
	var req dailySummaryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if req.Date == "" {
		req.Date = h.now().UTC().Format(domain.DateLayout)
	}

	msg := &domain.DailyInitiateMessage{
		Date:     req.Date,
		FeedName: req.FeedName,
		Force:    req.Force,
	}
	return h.send(c, msg, "daily-summary task enqueued for "+req.Date)
}

type weeklyDigestRequest struct {
	WeekEndDate     string `json:"weekEndDate,omitempty"`
	ForceRegenerate bool   `json:"forceRegenerate,omitempty"`
}

// TriggerWeeklyDigest enqueues a weekly-digest task. The week-end date
// defaults to the current UTC day.
func (h *TriggerHandler) TriggerWeeklyDigest(c echo.Context) error {
	var req weeklyDigestRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if req.WeekEndDate == "" {
		req.WeekEndDate = h.now().UTC().Format(domain.DateLayout)
	}

	msg := &domain.WeeklyDigestMessage{
		WeekEndDate:     req.WeekEndDate,
		ForceRegenerate: req.ForceRegenerate,
	}
	return h.send(c, msg, "weekly-digest task enqueued for week ending "+req.WeekEndDate)
}

func (h *TriggerHandler) send(c echo.Context, msg domain.Message, okMessage string) error {
	if err := h.dispatcher.Send(c.Request().Context(), msg); err != nil {
		return c.JSON(http.StatusBadRequest, triggerResponse{
			Success: false,
			Error:   err.Error(),
		})
	}
	return c.JSON(http.StatusAccepted, triggerResponse{
		Success:   true,
		RequestID: msg.Env().RequestID,
		Message:   okMessage,
	})
}

// Usage returns endpoint documentation for authenticated callers.
func (h *TriggerHandler) Usage(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"endpoints": []map[string]string{
			{
				"method": "POST",
				"path":   "/v1/trigger/feed-fetch",
				"body":   `{"feedUrl": "https://example.com/feed.xml", "feedName": "Example", "action": "fetch|validate"}`,
			},
			{
				"method": "POST",
				"path":   "/v1/trigger/daily-summary",
				"body":   `{"date": "YYYY-MM-DD", "feedName": "optional filter", "force": false}`,
			},
			{
				"method": "POST",
				"path":   "/v1/trigger/weekly-digest",
				"body":   `{"weekEndDate": "YYYY-MM-DD", "forceRegenerate": false}`,
			},
		},
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, triggerResponse{Success: false, Error: message})
}

// APIKeyMiddleware rejects requests missing the configured X-API-Key
// header. An empty configured key disables the trigger surface entirely.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return echo.NewHTTPError(http.StatusForbidden, "trigger API is not configured")
			}
			if c.Request().Header.Get("X-API-Key") != apiKey {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}
			return next(c)
		}
	}
}

// RegisterRoutes mounts the trigger endpoints under /v1/trigger.
func (h *TriggerHandler) RegisterRoutes(e *echo.Echo, apiKey string) {
	g := e.Group("/v1/trigger", APIKeyMiddleware(apiKey))
	g.POST("/feed-fetch", h.TriggerFeedFetch)
	g.POST("/daily-summary", h.TriggerDailySummary)
	g.POST("/weekly-digest", h.TriggerWeeklyDigest)
	g.GET("/feed-fetch", h.Usage)
	g.GET("/daily-summary", h.Usage)
	g.GET("/weekly-digest", h.Usage)
}
