package seqtx

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/seqtx/backoff"
	"github.com/arloliu/seqtx/types"
)

// retrier runs store and supplier calls with a per-call timeout and retries
// transient failures under a backoff strategy.
//
// Only infrastructure errors are retried. Business outcomes such as
// ErrSeriesBusy or ErrLostOwnership are returned on the first try.
type retrier struct {
	attempts  int
	strategy  backoff.Strategy
	opTimeout time.Duration
	metrics   MetricsCollector
}

// retryCall runs fn until it succeeds, fails with a non-transient error, or
// the retries are exhausted.
//
// Parameters:
//   - ctx: Parent context; cancellation stops retrying
//   - r: Retry policy
//   - op: Operation label for metrics ("claim", "renew", "finish", "pull", ...)
//   - fn: Call to run, receiving a context bounded by the operation timeout
//
// Returns:
//   - T: Result of the last call
//   - error: Error of the last call
func retryCall[T any](ctx context.Context, r *retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
		start := time.Now()
		result, err := fn(callCtx)
		cancel()

		transient := isTransient(ctx, err)
		r.metrics.RecordStoreOperation(op, time.Since(start).Seconds(), !transient)
		if !transient || attempt >= r.attempts {
			return result, err
		}

		r.metrics.RecordStoreRetry(op)
		timer := time.NewTimer(r.strategy.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
}

// isTransient reports whether err is worth retrying. A deadline hit by the
// per-call timeout is transient, one inherited from the parent is not.
func isTransient(parent context.Context, err error) bool {
	if err == nil {
		return false
	}
	if types.IsInfrastructureError(err) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}
