package db

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/unklstewy/fleetwatch/internal/log"
	"github.com/unklstewy/fleetwatch/pkg/config"
)

// connErrors are substrings of errors worth retrying.
var connErrors = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"eof",
	"timeout",
}

// retryWait is the base wait between WithRetry attempts.
var retryWait = time.Second

// ReconnectWithRetry connects to the database with exponential backoff.
// A maxRetries of 0 retries forever. The delay is capped at one minute.
func ReconnectWithRetry(cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration) (*DB, error) {
	logger := log.WithComponent("db")
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		logger.Debug().Int("attempt", attempt).Str("host", cfg.Host).Msg("Connecting to database")

		db, err := Connect(cfg)
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("Database connected")
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			logger.Error().Err(err).Int("attempts", attempt).Msg("Failed to connect to database")
			return nil, err
		}

		logger.Warn().Err(err).Dur("retry_in", delay).Msg("Database connection failed")
		time.Sleep(delay)

		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// HealthCheck pings the database and runs a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}
	logger := log.WithComponent("db")

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Warn().Err(err).Msg("Health check ping failed")
		return false
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		logger.Warn().Err(err).Msg("Health check query failed")
		return false
	}

	return result == 1
}

// WithRetry runs operation, retrying up to maxRetries times when the error
// looks like a dropped connection. Other errors are returned at once.
func WithRetry(operation func() error, maxRetries int) error {
	logger := log.WithComponent("db")
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsConnectionError(err) {
			return err
		}

		if attempt < maxRetries {
			wait := time.Duration(attempt+1) * retryWait
			logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", maxRetries+1).
				Dur("retry_in", wait).
				Msg("Database operation failed")
			time.Sleep(wait)
		}
	}

	return lastErr
}

// IsConnectionError reports whether err looks like a lost connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
