package generate

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// RetryPolicy controls how failed generation calls are retried with
// exponential backoff. Only the non-streaming, idempotent chat completion
// calls go through it.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns a RetryPolicy with sensible defaults:
// 3 attempts, 1s initial delay, 2x multiplier, 30s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// retryable classifies errors. Rate limits and server errors are worth
// another attempt; auth and validation failures are permanent. Unknown
// errors default to retryable, they are usually connection-level.
func (p *RetryPolicy) retryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}

// nextDelay returns the backoff delay for the given attempt number
// (1-indexed), InitialDelay * Multiplier^(attempt-1) capped at MaxDelay.
func (p *RetryPolicy) nextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn up to MaxAttempts times, sleeping between retries with
// exponential backoff. Returns nil on success or the last error when all
// attempts fail or the error is permanent.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.retryable(err) || attempt == p.MaxAttempts {
			return lastErr
		}

		log.Debug().
			Int("attempt", attempt).
			Err(err).
			Msg("Generation call failed - retrying")

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(p.nextDelay(attempt)):
		}
	}
	return lastErr
}
