package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-digest/config"
	pipeerr "feed-digest/utils/errors"
)

func newTestLLMClient(endpoint string) *LLMClient {
	return NewLLMClient(
		config.LLMConfig{
			Endpoint:    endpoint,
			Model:       "test-model",
			Temperature: 0.4,
			Timeout:     5 * time.Second,
		},
		config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
		discardLogger(),
	)
}

func TestLLMClient_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"text": "a fine summary"})
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	text, err := c.Generate(context.Background(), "summarize this", GenerateParams{
		MaxTokens:   512,
		Temperature: 0.4,
		Effort:      "low",
	})

	require.NoError(t, err)
	assert.Equal(t, "a fine summary", text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "summarize this", got.Prompt)
	assert.Equal(t, 512, got.MaxTokens)
	assert.Equal(t, "low", got.Effort)
	assert.Equal(t, 0.4, got.Temperature)
}

func TestLLMClient_Generate_ZeroTemperature(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"text": "deterministic output"})
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	_, err := c.Generate(context.Background(), "extract topics", GenerateParams{
		MaxTokens: 256,
	})

	require.NoError(t, err)
	assert.Zero(t, got.Temperature)
}

func TestLLMClient_Generate_RetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "eventually"})
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	text, err := c.Generate(context.Background(), "p", GenerateParams{})

	require.NoError(t, err)
	assert.Equal(t, "eventually", text)
	assert.Equal(t, 3, attempts)
}

func TestLLMClient_Generate_RateLimitExhaustsAttempts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	_, err := c.Generate(context.Background(), "p", GenerateParams{})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var pe *pipeerr.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, pipeerr.KindRateLimit, pe.Kind)
	assert.True(t, pe.Retryable())
}

func TestLLMClient_Generate_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	_, err := c.Generate(context.Background(), "p", GenerateParams{})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.False(t, pipeerr.IsRetryable(err))
}

func TestLLMClient_Generate_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	_, err := c.Generate(context.Background(), "p", GenerateParams{})

	assert.True(t, pipeerr.IsNotFound(err))
}

func TestLLMClient_GenerateJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "json", req.Format)
		json.NewEncoder(w).Encode(map[string]string{"text": `{"topics": ["ai", "chips"]}`})
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	var out struct {
		Topics []string `json:"topics"`
	}
	require.NoError(t, c.GenerateJSON(context.Background(), "p", GenerateParams{}, &out))
	assert.Equal(t, []string{"ai", "chips"}, out.Topics)
}

func TestLLMClient_GenerateJSON_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "not json at all"})
	}))
	defer srv.Close()

	c := newTestLLMClient(srv.URL)
	var out map[string]any
	err := c.GenerateJSON(context.Background(), "p", GenerateParams{}, &out)

	require.Error(t, err)
	assert.False(t, pipeerr.IsRetryable(err))
}
