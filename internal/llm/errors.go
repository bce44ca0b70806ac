package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrMissingAPIKey is returned by NewClient when no key is configured.
	ErrMissingAPIKey = errors.New("LLM API key is not configured (set OPENROUTER_API_KEY)")
	// ErrEmptyResponse is returned when the provider sends no choices.
	ErrEmptyResponse = errors.New("LLM response contained no choices")
	// ErrProviderUnavailable wraps transport failures: DNS, refused
	// connections and request timeouts.
	ErrProviderUnavailable = errors.New("model provider is unreachable")
)

// APIError is a non-success HTTP answer from the provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, zero if absent
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// Public is a message safe to return to API clients; it leaves out the
// provider's response body.
func (e *APIError) Public() string {
	return fmt.Sprintf("model provider returned status %d", e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying: a retryable APIError or
// a transport failure.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrProviderUnavailable) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
