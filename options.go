package seqtx

import (
	"time"

	"github.com/arloliu/seqtx/backoff"
)

// Option configures a Processing job with optional dependencies.
type Option func(*processingOptions)

// processingOptions holds optional Processing configuration.
type processingOptions struct {
	hooks        *Hooks
	metrics      MetricsCollector
	logger       Logger
	waitStrategy backoff.Strategy
	storeRetry   backoff.Strategy
	now          func() time.Time
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewProcessing
//
// Example:
//
//	hooks := &seqtx.Hooks{
//	    OnTransactionResolved: func(ctx context.Context, tx *seqtx.Transaction, outcome seqtx.Outcome) error {
//	        return audit(tx, outcome)
//	    },
//	}
//	job, err := seqtx.NewProcessing("job", &cfg, coord, handler, sup, series, seqtx.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *processingOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewProcessing
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *processingOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewProcessing
func WithLogger(logger Logger) Option {
	return func(o *processingOptions) {
		o.logger = logger
	}
}

// WithWaitStrategy sets how long a processor sleeps after a round found nothing to claim.
//
// The strategy receives the number of consecutive idle rounds (starting at 1)
// and its delay replaces TransactionAcquisitionDelay. By default the delay is
// a constant TransactionAcquisitionDelay.
//
// Parameters:
//   - strategy: Wait strategy (constant, exponential, fibonacci or a custom func)
//
// Returns:
//   - Option: Functional option for NewProcessing
//
// Example:
//
//	wait := backoff.NewFibonacci(10*time.Millisecond, time.Second)
//	job, err := seqtx.NewProcessing("job", &cfg, coord, handler, sup, series, seqtx.WithWaitStrategy(wait))
func WithWaitStrategy(strategy backoff.Strategy) Option {
	return func(o *processingOptions) {
		o.waitStrategy = strategy
	}
}

// WithStoreRetryBackoff sets the delay between retries of transient store failures.
//
// Defaults to backoff.DefaultStoreRetry(). The number of retries is
// Config.StoreRetryAttempts.
//
// Parameters:
//   - strategy: Retry delay strategy
//
// Returns:
//   - Option: Functional option for NewProcessing
func WithStoreRetryBackoff(strategy backoff.Strategy) Option {
	return func(o *processingOptions) {
		o.storeRetry = strategy
	}
}

// WithClock sets the clock lease timeouts are computed with.
//
// Use the same clock for the coordinator (coordinator.WithClock) so that both
// sides agree on lease expiry.
//
// Parameters:
//   - now: Clock function
//
// Returns:
//   - Option: Functional option for NewProcessing
func WithClock(now func() time.Time) Option {
	return func(o *processingOptions) {
		o.now = now
	}
}
