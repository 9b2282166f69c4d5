package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

const txMaxAttempts = 3

// retryable reports whether err is a transient storage conflict (InnoDB
// deadlock or lock-wait timeout). Business errors never match.
func retryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	return false
}

// withTxRetry runs fn up to txMaxAttempts times, retrying only storage
// conflicts. Everything else propagates on the first attempt.
func withTxRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return err
}
