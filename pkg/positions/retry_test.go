package positions

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:        max,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		Multiplier:        2,
		RespectRetryAfter: true,
	}
}

func TestRetryWithBackoffResult(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	t.Run("Success on first attempt", func(t *testing.T) {
		calls := 0
		res, err := RetryWithBackoffResult(ctx, fastRetry(3), log, func() (int, error) {
			calls++
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, res)
		assert.Equal(t, 1, calls)
	})

	t.Run("Success after retries", func(t *testing.T) {
		calls := 0
		res, err := RetryWithBackoffResult(ctx, fastRetry(3), log, func() (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
		assert.Equal(t, 3, calls)
	})

	t.Run("Max retries exceeded", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("still down")
		_, err := RetryWithBackoffResult(ctx, fastRetry(2), log, func() (int, error) {
			calls++
			return 0, sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 3, calls)
	})

	t.Run("Permanent error stops immediately", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("bad request")
		_, err := RetryWithBackoffResult(ctx, fastRetry(5), log, func() (int, error) {
			calls++
			return 0, Permanent(sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})

	t.Run("Context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		_, err := RetryWithBackoffResult(cctx, RetryConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}, log, func() (int, error) {
			calls++
			cancel()
			return 0, errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("Retry-After past the deadline gives up early", func(t *testing.T) {
		dctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		calls := 0
		start := time.Now()
		_, err := RetryWithBackoffResult(dctx, fastRetry(3), log, func() (int, error) {
			calls++
			return 0, &RateLimitError{Provider: "test", RetryAfter: time.Minute, Headers: RateLimitHeaders{Limit: -1, Remaining: -1}}
		})
		_, isRate := IsRateLimitError(err)
		assert.True(t, isRate)
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("Zero retries", func(t *testing.T) {
		calls := 0
		_, err := RetryWithBackoffResult(ctx, fastRetry(0), log, func() (int, error) {
			calls++
			return 0, errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"Seconds", "30", 30 * time.Second},
		{"Empty", "", 0},
		{"Negative", "-5", 0},
		{"Garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, parseRetryAfter(h))
		})
	}

	t.Run("HTTP date", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		d := parseRetryAfter(h)
		assert.Greater(t, d, 58*time.Minute)
	})
}

func TestExtractRateLimitHeaders(t *testing.T) {
	t.Run("Standard headers", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Rate-Limit-Limit", "100")
		h.Set("X-Rate-Limit-Remaining", "3")
		h.Set("X-Rate-Limit-Reset", "1700000000")

		rlh := extractRateLimitHeaders(h)
		assert.Equal(t, 100, rlh.Limit)
		assert.Equal(t, 3, rlh.Remaining)
		assert.Equal(t, int64(1700000000), rlh.Reset.Unix())
	})

	t.Run("Alternative header names", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Limit", "60")
		h.Set("X-RateLimit-Remaining", "59")

		rlh := extractRateLimitHeaders(h)
		assert.Equal(t, 60, rlh.Limit)
		assert.Equal(t, 59, rlh.Remaining)
	})

	t.Run("Missing headers", func(t *testing.T) {
		rlh := extractRateLimitHeaders(http.Header{})
		assert.Equal(t, -1, rlh.Limit)
		assert.Equal(t, -1, rlh.Remaining)
		assert.True(t, rlh.Reset.IsZero())
	})
}

func TestRateLimitError(t *testing.T) {
	withDelay := &RateLimitError{Provider: "p", RetryAfter: 30 * time.Second}
	assert.Equal(t, "p: rate limit exceeded (retry after 30s)", withDelay.Error())

	without := &RateLimitError{Provider: "p"}
	assert.Equal(t, "p: rate limit exceeded", without.Error())

	wrapped := unavailable("p", withDelay)
	rle, ok := IsRateLimitError(wrapped)
	require.True(t, ok)
	assert.Same(t, withDelay, rle)

	_, ok = IsRateLimitError(errors.New("other"))
	assert.False(t, ok)
}
