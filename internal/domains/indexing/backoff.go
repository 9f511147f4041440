package indexing

import (
	"context"
	"time"
)

// Backoff returns the delay after the attempt-th failure: base*2^(attempt-1),
// capped at limit.
func Backoff(base, limit time.Duration, attempt int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := int64(1); i < attempt; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
