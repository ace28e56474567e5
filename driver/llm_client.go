package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feed-digest/config"
	pipeerr "feed-digest/utils/errors"
)

// GenerateParams are the per-call generation parameters.
type GenerateParams struct {
	MaxTokens int
	// Temperature is sent as given; zero requests deterministic sampling.
	Temperature float64
	// Effort is the thinking-effort hint: "low", "medium", or "high".
	Effort string
	// JSONMode asks the backend for a structured JSON response.
	JSONMode bool
}

// LLMClient is the generative-text backend client. It classifies HTTP
// failures into the tagged error taxonomy and retries transient ones with
// exponential backoff internally; callers see only the final classified
// error.
type LLMClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	retry    *pipeerr.RetryExecutor
	defaults config.LLMConfig
	logger   *slog.Logger
}

// NewLLMClient creates a client from configuration.
func NewLLMClient(cfg config.LLMConfig, retryCfg config.RetryConfig, logger *slog.Logger) *LLMClient {
	policy := pipeerr.NewRetryPolicy(retryCfg.MaxAttempts, retryCfg.BaseDelay)
	policy.MaxDelay = retryCfg.MaxDelay

	return &LLMClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
		retry:    pipeerr.NewRetryExecutor(policy),
		defaults: cfg,
		logger:   logger,
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Effort      string  `json:"thinking_effort,omitempty"`
	Format      string  `json:"format,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate sends the prompt and returns the generated free text.
func (c *LLMClient) Generate(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	var text string

	err := c.retry.Execute(ctx, func() error {
		out, callErr := c.call(ctx, prompt, params)
		if callErr != nil {
			return callErr
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}

	return text, nil
}

// GenerateJSON sends the prompt in JSON mode and decodes the structured
// response into out.
func (c *LLMClient) GenerateJSON(ctx context.Context, prompt string, params GenerateParams, out any) error {
	params.JSONMode = true

	text, err := c.Generate(ctx, prompt, params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), out); err != nil {
		return pipeerr.NewValidationError("llm.generate_json",
			fmt.Sprintf("backend returned malformed JSON: %v", err))
	}
	return nil
}

func (c *LLMClient) call(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	const op = "llm.generate"

	body, err := json.Marshal(generateRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Effort:      params.Effort,
		Format:      formatFor(params),
	})
	if err != nil {
		return "", pipeerr.NewValidationError(op, fmt.Sprintf("marshal request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.defaults.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", pipeerr.NewValidationError(op, fmt.Sprintf("new request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", pipeerr.NewTimeoutError(op, err)
		}
		return "", pipeerr.NewAPIError(op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(op, resp, strings.TrimSpace(string(raw)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", pipeerr.NewAPIError(op, resp.StatusCode, "decode response", err)
	}

	c.logger.DebugContext(ctx, "generation completed",
		"model", c.model,
		"prompt_chars", len(prompt),
		"duration", time.Since(start))

	return decoded.Text, nil
}

func formatFor(params GenerateParams) string {
	if params.JSONMode {
		return "json"
	}
	return ""
}

// classifyStatus maps an HTTP failure status to a tagged error. Client
// errors are permanent; 429 is a rate limit with an optional retry-after
// hint; everything 5xx is retryable.
func classifyStatus(op string, resp *http.Response, body string) error {
	status := resp.StatusCode
	cause := fmt.Errorf("HTTP %d: %s", status, body)

	switch {
	case status == http.StatusTooManyRequests:
		return pipeerr.NewRateLimitError(op, parseRetryAfter(resp.Header.Get("Retry-After")), cause)
	case status == http.StatusNotFound:
		return pipeerr.NewNotFoundError(op, body)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return pipeerr.NewTimeoutError(op, cause)
	default:
		return pipeerr.NewAPIError(op, status, body, cause)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
