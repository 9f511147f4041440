package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	maxRetries = 3
	retryDelay = 10 * time.Millisecond
)

// IsRetryable reports whether err is a transient failure that is safe to
// retry: connection errors before anything was sent, serialization failures
// and deadlocks.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01",                   // deadlock_detected
			"08000", "08003", "08006": // connection exceptions
			return true
		}
	}
	return false
}

// retry runs fn up to maxRetries times while it fails with a retryable
// error, doubling the delay between attempts.
func retry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)

	for attempt := range maxRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(retryDelay << (attempt - 1)):
			}
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return result, err
		}
	}
	return result, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// Query runs fn with a Queries instance, retrying transient errors.
func Query(ctx context.Context, fn func(*Queries) error) error {
	_, err := Query1(ctx, func(q *Queries) (struct{}, error) {
		return struct{}{}, fn(q)
	})
	return err
}

// Query1 runs fn and returns its result, retrying transient errors.
func Query1[T any](ctx context.Context, fn func(*Queries) (T, error)) (T, error) {
	return retry(ctx, func() (T, error) {
		return fn(New(defaultPool))
	})
}

// Tx runs fn within a transaction, retrying transient errors.
func Tx(ctx context.Context, fn func(*Queries) error) error {
	_, err := Tx1(ctx, func(q *Queries) (struct{}, error) {
		return struct{}{}, fn(q)
	})
	return err
}

// Tx1 runs fn within a transaction and returns its result, retrying
// transient errors.
func Tx1[T any](ctx context.Context, fn func(*Queries) (T, error)) (T, error) {
	return retry(ctx, func() (T, error) {
		var zero T

		tx, err := defaultPool.Begin(ctx)
		if err != nil {
			return zero, err
		}
		defer tx.Rollback(ctx)

		result, err := fn(New(tx))
		if err != nil {
			return zero, err
		}
		if err := tx.Commit(ctx); err != nil {
			return zero, err
		}
		return result, nil
	})
}
