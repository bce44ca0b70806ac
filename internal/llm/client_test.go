package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionJSON(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "meta-llama/llama-3-8b-instruct",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(body)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = server.URL + "/api/v1"
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	client.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return client
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_GenerateSendsPrompt(t *testing.T) {
	var captured chatRequest
	var authHeader, path string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusOK, completionJSON("```json\n{\"title\": \"Report\"}\n```"))
	}, nil)

	out, err := client.Generate(context.Background(), "The quarterly report shows growth.")
	require.NoError(t, err)

	assert.Equal(t, "```json\n{\"title\": \"Report\"}\n```", out)
	assert.Equal(t, "/api/v1/chat/completions", path)
	assert.Equal(t, "Bearer test-key", authHeader)
	assert.Equal(t, "meta-llama/llama-3-8b-instruct", captured.Model)
	assert.InDelta(t, 0.7, captured.Temperature, 1e-9)
	assert.Equal(t, 1000, captured.MaxTokens)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, SystemPrompt, captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "The quarterly report shows growth.")
	assert.Contains(t, captured.Messages[1].Content, "16. Summary Bullet Points")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(captured.Messages[1].Content), "Return all metadata in JSON format."))
}

func TestClient_GenerateTruncatesInput(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusOK, completionJSON("{}"))
	}, func(cfg *Config) { cfg.MaxInputChars = 5 })

	_, err := client.Generate(context.Background(), "abcdefghij")
	require.NoError(t, err)
	assert.Contains(t, captured.Messages[1].Content, "Content:\nabcde\n")
	assert.NotContains(t, captured.Messages[1].Content, "abcdef")
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
			return
		}
		writeJSON(w, http.StatusOK, completionJSON(`{"title":"ok"}`))
	}, nil)

	out, err := client.Generate(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`)
	}, func(cfg *Config) { cfg.MaxRetries = 2 })

	_, err := client.Generate(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusUnauthorized, `{"error":{"message":"invalid key","code":401}}`)
	}, nil)

	_, err := client.Generate(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, strings.HasPrefix(apiErr.Error(), "OpenRouter API error: 401 - "))
	assert.NotEmpty(t, apiErr.Body)
	assert.Equal(t, "model provider returned status 401", apiErr.Public())
}

func TestClient_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}, nil)

	_, err := client.Generate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_UnreachableProviderIsRetried(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	limiter := ratelimit.NewProviderLimiter(0)
	cfg := DefaultConfig()
	cfg.APIKey = "k"
	cfg.BaseURL = closed.URL
	cfg.MaxRetries = 2

	client, err := NewClient(cfg, limiter)
	require.NoError(t, err)
	var sleeps int
	client.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	_, err = client.Generate(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, sleeps)
	assert.Equal(t, int64(3), limiter.Stats()["openrouter"].ErrorCount)
}

func TestClient_RecordsRateLimitInLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "k"
	cfg.BaseURL = server.URL
	cfg.MaxRetries = 0

	limiter := ratelimit.NewProviderLimiter(0)
	client, err := NewClient(cfg, limiter)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "text")
	require.Error(t, err)

	stats := limiter.Stats()["openrouter"]
	assert.Equal(t, int64(1), stats.RateLimited)
	assert.True(t, stats.InBackoff)
}

func TestRetryDelay(t *testing.T) {
	c := &Client{cfg: Config{RetryBaseDelay: time.Second, RetryMaxDelay: 30 * time.Second}}

	assert.Equal(t, time.Second, c.retryDelay(1, nil))
	assert.Equal(t, 2*time.Second, c.retryDelay(2, nil))
	assert.Equal(t, 4*time.Second, c.retryDelay(3, nil))
	assert.Equal(t, 30*time.Second, c.retryDelay(10, nil))
	assert.Equal(t, 30*time.Second, c.retryDelay(80, nil))

	hinted := &APIError{StatusCode: 429, RetryAfter: 9 * time.Second}
	assert.Equal(t, 9*time.Second, c.retryDelay(1, hinted))
	hinted.RetryAfter = time.Hour
	assert.Equal(t, 30*time.Second, c.retryDelay(1, hinted))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestTruncateInput(t *testing.T) {
	out, cut := TruncateInput("héllo wörld", 4)
	assert.True(t, cut)
	assert.Equal(t, "héll", out)

	out, cut = TruncateInput("short", 100)
	assert.False(t, cut)
	assert.Equal(t, "short", out)

	out, cut = TruncateInput("unbounded", 0)
	assert.False(t, cut)
	assert.Equal(t, "unbounded", out)
}

func TestBuildPromptListsAllFields(t *testing.T) {
	prompt := BuildPrompt("body")
	assert.Contains(t, prompt, "1. Title (always required if u can)\n")
	assert.Contains(t, prompt, "13. Estimated Reading Time (in minutes)\n")
	assert.Contains(t, prompt, "Content:\nbody\n")
}
