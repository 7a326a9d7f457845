package clio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	clioRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clio_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	clioRetryWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clio_retry_wait_seconds",
		Help:    "Wait duration before retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_kind"})

	clioRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clio_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration for server/network errors.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// RateLimitBuffer is added on top of the server-provided Retry-After hint.
	RateLimitBuffer time.Duration

	// RateLimitDefaultWait is used for 429 responses without a Retry-After hint.
	RateLimitDefaultWait time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:          4,
		InitialBackoff:       1 * time.Second,
		MaxBackoff:           30 * time.Second,
		BackoffMultiplier:    2.0,
		RateLimitBuffer:      2 * time.Second,
		RateLimitDefaultWait: 60 * time.Second,
	}
}

// waitFor computes the wait before the next attempt. Rate-limit waits come
// from the server hint plus a safety buffer; everything else uses the
// current exponential backoff with ±20% jitter.
func (c RetryConfig) waitFor(err error, backoff time.Duration) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
		if apiErr.RetryAfter > 0 {
			return time.Duration(apiErr.RetryAfter)*time.Second + c.RateLimitBuffer
		}
		return c.RateLimitDefaultWait
	}
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff executes fn until it succeeds, a non-retryable error
// occurs, or attempts are exhausted. It respects context cancellation.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		kind := ErrorKindOf(err)

		if !shouldRetry(kind) {
			return lastErr
		}

		// If this was the last attempt, don't wait
		if attempt >= config.MaxAttempts {
			break
		}

		wait := config.waitFor(err, backoff)

		clioRetriesTotal.WithLabelValues(string(kind)).Inc()
		clioRetryWaitSeconds.WithLabelValues(string(kind)).Observe(wait.Seconds())

		log.Debug().
			Str("error_kind", string(kind)).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Retrying request after wait")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_kind", string(kind)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry wait")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}

		// Calculate next backoff (exponential)
		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	kind := ErrorKindOf(lastErr)
	clioRetryExhaustedTotal.WithLabelValues(string(kind)).Inc()
	log.Warn().
		Str("error_kind", string(kind)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
