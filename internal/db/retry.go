package db

import (
	"context"
	"errors"
	"math/rand"
	"time"

	sqlite3 "modernc.org/sqlite/lib"
)

// retryConfig controls retry behaviour for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// sqliteCoder matches *sqlite.Error from modernc.org/sqlite, which reports
// the extended result code.
type sqliteCoder interface {
	Code() int
}

// isTransientSQLiteErr reports whether err carries a lock or WAL contention
// result code that a retry can clear.
func isTransientSQLiteErr(err error) bool {
	var coded sqliteCoder
	if !errors.As(err, &coded) {
		return false
	}
	code := coded.Code()
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return code == sqlite3.SQLITE_IOERR_SHORT_READ
}

// retryOp runs fn with exponential backoff and jitter while it fails with a
// transient error. It gives up early when ctx is done.
func retryOp(ctx context.Context, cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < cfg.maxRetries {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoffDelay(cfg, attempt)):
			}
		}
	}
	return lastErr
}

// backoffDelay is baseDelay * 2^attempt capped at maxDelay, plus jitter in
// [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(cfg.baseDelay)))
	return delay + jitter
}
