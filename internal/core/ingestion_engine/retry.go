package ingestion_engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

const maxBackoff = 30 * time.Second

// IsRetryable reports whether err may succeed on a later attempt. Caller
// errors, ownership conflicts and cancellation are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, internalerr.ErrDuplicateID),
		errors.Is(err, internalerr.ErrDimensionMismatch),
		errors.Is(err, internalerr.ErrInvalidInput),
		errors.Is(err, internalerr.ErrInvalidFilter),
		errors.Is(err, internalerr.ErrEmptyQuery):
		return false
	}
	return true
}

// Backoff returns the delay before retry attempt n (0-indexed): base doubled
// per attempt, capped, plus up to half again of jitter.
func Backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << uint(min(attempt, 16))
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry runs fn until it succeeds, fails permanently, or MaxRetries
// retries are spent.
func (i *DocumentIngestor) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) || attempt >= i.cfg.MaxRetries {
			return err
		}
		i.log.Warn("retryable error", "op", op, "attempt", attempt, "error", err)
		if serr := i.sleep(ctx, Backoff(attempt, i.cfg.RetryBaseDelay)); serr != nil {
			return err
		}
	}
}
