// Package lease keeps a transaction lease alive while a handler runs.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/seqtx/internal/logger"
	"github.com/arloliu/seqtx/internal/metrics"
	"github.com/arloliu/seqtx/types"
)

// Common errors for keeper operations.
var (
	ErrNotStarted     = errors.New("keeper not started")
	ErrAlreadyStarted = errors.New("keeper already started")
)

// Lease is the renewable ownership a Keeper maintains.
type Lease interface {
	// Timeout returns the current lease timeout, and false once the lease was
	// resolved or lost and needs no further renewal.
	Timeout() (time.Time, bool)

	// Extend moves the lease timeout to the given instant.
	// types.ErrLostOwnership means the lease cannot be renewed anymore.
	Extend(ctx context.Context, to time.Time) error
}

// Config configures a Keeper.
type Config struct {
	// Extension is how far past now each renewal moves the timeout.
	Extension time.Duration

	// Margin triggers a renewal once the remaining lease time drops below it.
	Margin time.Duration

	// CheckInterval is the polling period. Default: Margin/4, at least 5ms.
	CheckInterval time.Duration

	// OperationTimeout bounds each renewal call. Default: Margin.
	OperationTimeout time.Duration

	// Now is the clock lease timeouts are compared against. Default: time.Now.
	Now func() time.Time
}

// Keeper renews a lease in the background before it expires.
//
// Renewals are proactive: whenever the remaining time drops below Margin,
// the timeout is moved to now+Extension. A lease renewed by its holder in the
// meantime simply needs no renewal from the keeper. The keeper exits on its
// own once the lease reports it is no longer held or a renewal finds
// ownership lost.
type Keeper struct {
	lease   Lease
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a keeper for lease.
//
// Parameters:
//   - lease: Lease to keep alive
//   - cfg: Renewal timing
//   - logger: Logger (nil for none)
//   - m: Metrics collector (nil for none)
//
// Returns:
//   - *Keeper: Keeper ready to Start
//
// Example:
//
//	k := lease.New(handle, lease.Config{Extension: 30 * time.Second, Margin: 10 * time.Second}, logger, m)
//	_ = k.Start()
//	defer k.Stop()
func New(l Lease, cfg Config, log types.Logger, m types.MetricsCollector) *Keeper {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = max(cfg.Margin/4, 5*time.Millisecond)
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = max(cfg.Margin, time.Second)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Keeper{
		lease:   l,
		cfg:     cfg,
		logger:  log,
		metrics: m,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins renewing in the background.
func (k *Keeper) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.started {
		return ErrAlreadyStarted
	}
	k.started = true

	go k.loop()

	return nil
}

// Stop stops renewing and waits for the background goroutine to exit.
func (k *Keeper) Stop() error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return ErrNotStarted
	}
	k.started = false
	select {
	case <-k.stopCh:
	default:
		close(k.stopCh)
	}
	k.mu.Unlock()

	<-k.doneCh

	return nil
}

// Done is closed when the keeper goroutine exited.
func (k *Keeper) Done() <-chan struct{} {
	return k.doneCh
}

func (k *Keeper) loop() {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			if !k.check() {
				return
			}
		}
	}
}

// check renews when due and reports whether the keeper should keep running.
func (k *Keeper) check() bool {
	timeout, held := k.lease.Timeout()
	if !held {
		return false
	}

	now := k.cfg.Now()
	if timeout.Sub(now) >= k.cfg.Margin {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.cfg.OperationTimeout)
	err := k.lease.Extend(ctx, now.Add(k.cfg.Extension))
	cancel()

	k.metrics.RecordLeaseRenewal(err == nil)

	switch {
	case err == nil:
		return true
	case errors.Is(err, types.ErrLostOwnership):
		k.logger.Warn("lease lost while renewing", "error", err)
		return false
	default:
		// transient: the next tick retries while the lease has time left
		k.logger.Warn("lease renewal failed", "error", err, "remaining", timeout.Sub(now))
		return true
	}
}
