package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/ratelimit"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Generator produces a raw model answer for extracted document text.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
	Model() string
}

// Config configures the chat-completions client.
type Config struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"-"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	MaxInputChars  int           `yaml:"max_input_chars"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	Timeout        time.Duration `yaml:"timeout"`
	MinInterval    time.Duration `yaml:"min_interval"`
	Referer        string        `yaml:"referer"`
	AppTitle       string        `yaml:"app_title"`
}

// DefaultConfig targets OpenRouter's Llama 3 8B instruct model.
func DefaultConfig() Config {
	return Config{
		Provider:       "OpenRouter",
		BaseURL:        "https://openrouter.ai/api/v1",
		Model:          "meta-llama/llama-3-8b-instruct",
		Temperature:    0.7,
		MaxTokens:      1000,
		MaxInputChars:  12000,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
		Timeout:        60 * time.Second,
		AppTitle:       "SmartMeta",
	}
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg     Config
	client  openai.Client
	limiter *ratelimit.ProviderLimiter
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client. limiter may be nil.
func NewClient(cfg Config, limiter *ratelimit.ProviderLimiter) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	defaults := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaults.RetryMaxDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.AppTitle != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.AppTitle))
	}

	if limiter != nil && cfg.MinInterval > 0 {
		limiter.SetInterval(cfg.limiterKey(), cfg.MinInterval)
	}

	return &Client{
		cfg:     cfg,
		client:  openai.NewClient(opts...),
		limiter: limiter,
		logger:  log.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
		sleep:   sleepContext,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c Config) limiterKey() string {
	return strings.ToLower(c.Provider)
}

// Generate sends the metadata prompt for text and returns the model's answer
// unparsed. Rate-limit and server errors are retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	input, truncated := TruncateInput(text, c.cfg.MaxInputChars)
	if truncated {
		c.logger.Info().
			Int("max_input_chars", c.cfg.MaxInputChars).
			Msg("Document text truncated before sending to model")
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(BuildPrompt(input)),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		MaxTokens:   openai.Int(int64(c.cfg.MaxTokens)),
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt, lastErr)
			c.logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying metadata generation after delay")
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		content, err := c.complete(ctx, params)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !IsRetryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("giving up after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	key := c.cfg.limiterKey()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, key); err != nil {
			return "", err
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		apiErr := c.toAPIError(err)
		if apiErr == nil {
			if c.limiter != nil {
				c.limiter.RecordError(key)
			}
			return "", fmt.Errorf("%w: %s request failed: %v", ErrProviderUnavailable, c.cfg.Provider, err)
		}
		if c.limiter != nil {
			if apiErr.StatusCode == http.StatusTooManyRequests {
				c.limiter.RecordRateLimited(key, apiErr.RetryAfter)
			} else {
				c.limiter.RecordError(key)
			}
		}
		return "", apiErr
	}

	if c.limiter != nil {
		c.limiter.RecordSuccess(key)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().
		Dur("duration", time.Since(start)).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Metadata generated")

	return resp.Choices[0].Message.Content, nil
}

func (c *Client) toAPIError(err error) *APIError {
	var oaErr *openai.Error
	if !errors.As(err, &oaErr) {
		return nil
	}

	body := oaErr.RawJSON()
	if body == "" {
		body = oaErr.Message
	}
	if body == "" {
		body = http.StatusText(oaErr.StatusCode)
	}

	apiErr := &APIError{Provider: c.cfg.Provider, StatusCode: oaErr.StatusCode, Body: body}
	if oaErr.Response != nil {
		apiErr.RetryAfter = parseRetryAfter(oaErr.Response.Header.Get("Retry-After"), time.Now())
	}
	return apiErr
}

// retryDelay doubles RetryBaseDelay per attempt up to RetryMaxDelay. A
// Retry-After hint from the provider wins when it is longer.
func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	delay := c.cfg.RetryBaseDelay
	for i := 1; i < attempt && delay < c.cfg.RetryMaxDelay; i++ {
		delay *= 2
	}
	if delay > c.cfg.RetryMaxDelay {
		delay = c.cfg.RetryMaxDelay
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
		if delay > c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
		}
	}
	return delay
}

// parseRetryAfter accepts both delta-seconds and HTTP-date values.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
