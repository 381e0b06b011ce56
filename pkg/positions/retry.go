package positions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries int

	// InitialDelay is the initial backoff delay
	InitialDelay time.Duration

	// MaxDelay caps a single backoff delay
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (2.0 for exponential)
	Multiplier float64

	// RespectRetryAfter uses the Retry-After header when present
	RespectRetryAfter bool
}

// DefaultRetryConfig returns defaults sized to fit inside a 10 second
// fetch timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          4 * time.Second,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so RetryWithBackoffResult stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoffResult runs fn until it succeeds, returns a permanent
// error, or the retries are exhausted. Rate limit errors replace the
// computed delay with their Retry-After value. A delay that would run past
// the context deadline ends the loop early with the last error.
func RetryWithBackoffResult[T any](ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
				return result, fmt.Errorf("retry abandoned, next attempt would pass deadline: %w", lastErr)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}

		result = res
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return result, perm.err
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
		}

		// Last attempt - don't calculate next delay
		if attempt == cfg.MaxRetries {
			break
		}

		// delay = min(InitialDelay * Multiplier^attempt, MaxDelay)
		delay = time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		if rle, ok := IsRateLimitError(err); ok {
			if cfg.RespectRetryAfter && rle.RetryAfter > 0 {
				delay = rle.RetryAfter
			}
			if rle.Headers.Remaining >= 0 {
				logger.Warn().
					Int("remaining", rle.Headers.Remaining).
					Int("limit", rle.Headers.Limit).
					Time("reset", rle.Headers.Reset).
					Msg("Rate limit hit")
			}
		}

		logger.Debug().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("Retrying request")
	}

	return result, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}
