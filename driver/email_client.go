package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"feed-digest/config"
	pipeerr "feed-digest/utils/errors"
)

// EmailClient sends digest emails through an HTTP email provider.
type EmailClient struct {
	endpoint string
	apiKey   string
	sender   string
	client   *http.Client
	logger   *slog.Logger
}

// NewEmailClient creates a client from configuration.
func NewEmailClient(cfg config.EmailConfig, logger *slog.Logger) *EmailClient {
	return &EmailClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		sender:   cfg.Sender,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers an HTML email and returns the provider message ID.
func (c *EmailClient) Send(ctx context.Context, recipients []string, subject, html string) (string, error) {
	const op = "email.send"

	if len(recipients) == 0 {
		return "", pipeerr.NewValidationError(op, "recipient list is empty")
	}

	body, err := json.Marshal(sendRequest{
		From:    c.sender,
		To:      recipients,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return "", pipeerr.NewValidationError(op, fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", pipeerr.NewValidationError(op, fmt.Sprintf("new request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", pipeerr.NewTimeoutError(op, err)
		}
		return "", pipeerr.NewAPIError(op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(op, resp, strings.TrimSpace(string(raw)))
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", pipeerr.NewAPIError(op, resp.StatusCode, "decode response", err)
	}

	c.logger.InfoContext(ctx, "email sent",
		"recipients", len(recipients),
		"subject", subject,
		"message_id", decoded.ID)

	return decoded.ID, nil
}
