package store

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// isBusyError reports SQLITE_BUSY and "database is locked" errors, both of
// which clear once the competing writer commits.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withBusyRetry runs op, retrying busy errors with exponential backoff
// (100ms, 200ms, 400ms). Other errors return immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isBusyError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx))
}
