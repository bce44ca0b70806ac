package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/logging"
	"github.com/rs/zerolog"
)

// MaxBackoff caps how long a provider is paused after repeated errors.
const MaxBackoff = 5 * time.Minute

// ProviderLimiter spaces out requests to remote model providers and pauses a
// provider after it answers with a rate-limit response.
type ProviderLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*providerState
	defaultInterval time.Duration
	now             func() time.Time
	logger          zerolog.Logger
}

type providerState struct {
	minInterval     time.Duration
	lastRequestTime time.Time
	backoffUntil    time.Time
	requestCount    int64
	errorCount      int64
	rateLimited     int64
}

// ProviderStats contains statistics for a provider
type ProviderStats struct {
	RequestCount    int64         `json:"request_count"`
	ErrorCount      int64         `json:"error_count"`
	RateLimited     int64         `json:"rate_limited"`
	MinInterval     time.Duration `json:"min_interval"`
	LastRequestTime time.Time     `json:"last_request_time"`
	InBackoff       bool          `json:"in_backoff"`
	BackoffUntil    time.Time     `json:"backoff_until"`
}

// NewProviderLimiter creates a limiter. Providers that were never configured
// with SetInterval use defaultInterval.
func NewProviderLimiter(defaultInterval time.Duration) *ProviderLimiter {
	return &ProviderLimiter{
		limiters:        make(map[string]*providerState),
		defaultInterval: defaultInterval,
		now:             time.Now,
		logger:          logging.GetLogger("ratelimit"),
	}
}

// SetInterval sets the minimum spacing between requests to provider.
func (r *ProviderLimiter) SetInterval(provider string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(provider).minInterval = interval
}

func (r *ProviderLimiter) state(provider string) *providerState {
	s, ok := r.limiters[provider]
	if !ok {
		s = &providerState{minInterval: r.defaultInterval}
		r.limiters[provider] = s
	}
	return s
}

// Wait blocks until it's safe to make a request to the provider. The slot
// is reserved before sleeping so concurrent callers queue behind each other.
func (r *ProviderLimiter) Wait(ctx context.Context, provider string) error {
	r.mu.Lock()
	s := r.state(provider)
	now := r.now()

	next := now
	if !s.lastRequestTime.IsZero() {
		if earliest := s.lastRequestTime.Add(s.minInterval); earliest.After(next) {
			next = earliest
		}
	}
	if s.backoffUntil.After(next) {
		next = s.backoffUntil
	}

	s.lastRequestTime = next
	s.requestCount++
	r.mu.Unlock()

	wait := next.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordRateLimited pauses the provider for retryAfter, or for an increasing
// backoff when the provider gave no hint.
func (r *ProviderLimiter) RecordRateLimited(provider string, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state(provider)
	s.errorCount++
	s.rateLimited++

	backoff := retryAfter
	if backoff <= 0 {
		backoff = time.Duration(s.errorCount) * time.Second
	}
	if backoff > MaxBackoff {
		backoff = MaxBackoff
	}
	if until := r.now().Add(backoff); until.After(s.backoffUntil) {
		s.backoffUntil = until
		r.logger.Warn().
			Str("provider", provider).
			Dur("backoff", backoff).
			Time("backoff_until", until).
			Msg("Provider rate limited, pausing requests")
	}
}

// RecordError counts a failed request and backs off after repeated errors.
func (r *ProviderLimiter) RecordError(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state(provider)
	s.errorCount++

	if s.errorCount > 3 {
		backoff := time.Duration(s.errorCount) * 5 * time.Second
		if backoff > MaxBackoff {
			backoff = MaxBackoff
		}
		s.backoffUntil = r.now().Add(backoff)
		r.logger.Warn().
			Str("provider", provider).
			Int64("errors", s.errorCount).
			Dur("backoff", backoff).
			Msg("Repeated provider errors, backing off")
	}
}

// RecordSuccess resets error count for a provider
func (r *ProviderLimiter) RecordSuccess(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state(provider)
	if s.errorCount > 0 {
		r.logger.Info().
			Str("provider", provider).
			Int64("errors", s.errorCount).
			Msg("Provider recovered")
	}
	s.errorCount = 0
}

// Stats returns statistics for all providers
func (r *ProviderLimiter) Stats() map[string]ProviderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stats := make(map[string]ProviderStats, len(r.limiters))
	for name, s := range r.limiters {
		stats[name] = ProviderStats{
			RequestCount:    s.requestCount,
			ErrorCount:      s.errorCount,
			RateLimited:     s.rateLimited,
			MinInterval:     s.minInterval,
			LastRequestTime: s.lastRequestTime,
			InBackoff:       now.Before(s.backoffUntil),
			BackoffUntil:    s.backoffUntil,
		}
	}
	return stats
}
