package seqtx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/seqtx/internal/lease"
	"github.com/arloliu/seqtx/types"
)

var errResolved = fmt.Errorf("%w: transaction already resolved", types.ErrLostOwnership)

// txHandle is the owner side of one claimed transaction.
//
// Every coordinator call made on behalf of the transaction goes through the
// handle: the processor, the ProcessingContext, a detached finisher and the
// lease keeper all share it. Calls are serialized by callMu so that each one
// presents the version returned by the previous one. mu only guards the
// state below and is never held across a store round trip, so readers do not
// wait for an in-flight renewal. The handle resolves exactly once; onResolved
// is invoked at that moment.
type txHandle struct {
	coord      Coordinator
	retry      *retrier
	now        func() time.Time
	ctx        context.Context //nolint:containedctx // detached owner context for store calls
	onResolved func(tx *Transaction, outcome Outcome)

	callMu sync.Mutex

	mu       sync.Mutex
	tx       *Transaction
	resolved bool
	outcome  Outcome
	detached bool
	done     chan struct{}
}

var _ lease.Lease = (*txHandle)(nil)

func newTxHandle(ctx context.Context, coord Coordinator, r *retrier, now func() time.Time, tx *Transaction,
	onResolved func(tx *Transaction, outcome Outcome),
) *txHandle {
	return &txHandle{
		coord:      coord,
		retry:      r,
		now:        now,
		ctx:        context.WithoutCancel(ctx),
		onResolved: onResolved,
		tx:         tx,
		done:       make(chan struct{}),
	}
}

// transaction returns a copy of the latest transaction state.
func (h *txHandle) transaction() *Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.tx.Clone()
}

// Timeout implements lease.Lease.
func (h *txHandle) Timeout() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resolved {
		return time.Time{}, false
	}

	return h.tx.Timeout, true
}

// Extend implements lease.Lease.
func (h *txHandle) Extend(ctx context.Context, to time.Time) error {
	return h.update(ctx, "renew", func(ctx context.Context, ref TransactionRef) (*Transaction, error) {
		return h.coord.Renew(ctx, ref, to)
	})
}

func (h *txHandle) renew(to time.Time) error {
	return h.Extend(h.ctx, to)
}

func (h *txHandle) updateDetail(detail []byte) error {
	return h.update(h.ctx, "detail", func(ctx context.Context, ref TransactionRef) (*Transaction, error) {
		return h.coord.UpdateDetail(ctx, ref, detail)
	})
}

func (h *txHandle) setEnd(end Position) error {
	return h.update(h.ctx, "end", func(ctx context.Context, ref TransactionRef) (*Transaction, error) {
		return h.coord.SetEndPosition(ctx, ref, end)
	})
}

// finish commits the transaction; end overrides the end of a range that was never fixed.
func (h *txHandle) finish(end Position, outcome Outcome) error {
	return h.resolve(outcome, "finish", func(ctx context.Context, ref TransactionRef) (*Transaction, error) {
		return h.coord.Finish(ctx, ref, end)
	})
}

func (h *txHandle) abort() error {
	return h.resolve(OutcomeFailed, "abort", func(ctx context.Context, ref TransactionRef) (*Transaction, error) {
		return h.coord.Abort(ctx, ref)
	})
}

// abandon resolves the handle locally without a coordinator call, leaving the
// lease to expire. It is used when resolving failed on infrastructure errors.
func (h *txHandle) abandon(outcome Outcome) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resolved {
		return false
	}
	h.resolveLocked(outcome)

	return true
}

// detach hands the resolution over to a finisher.
func (h *txHandle) detach() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detached = true
}

func (h *txHandle) isDetached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.detached
}

func (h *txHandle) isResolved() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.resolved
}

// resolution returns the outcome the handle resolved with.
func (h *txHandle) resolution() (Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.outcome, h.resolved
}

// watchExpiry resolves a detached handle as lost once its lease passes the
// timeout unresolved. Renewals made through the finisher push the deadline.
func (h *txHandle) watchExpiry() {
	for {
		deadline, held := h.Timeout()
		if !held {
			return
		}

		wait := deadline.Sub(h.now())
		if wait <= 0 {
			h.abandon(OutcomeLost)
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-h.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (h *txHandle) update(ctx context.Context, op string, fn func(ctx context.Context, ref TransactionRef) (*Transaction, error)) error {
	h.callMu.Lock()
	defer h.callMu.Unlock()

	tx, err := h.call(ctx, op, fn)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.resolved {
		h.tx = tx
	}

	return nil
}

func (h *txHandle) resolve(outcome Outcome, op string, fn func(ctx context.Context, ref TransactionRef) (*Transaction, error)) error {
	h.callMu.Lock()
	defer h.callMu.Unlock()

	tx, err := h.call(h.ctx, op, fn)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// an expiry watch may have given the handle up while the call was in flight
	if h.resolved {
		return errResolved
	}
	h.tx = tx
	h.resolveLocked(outcome)

	return nil
}

// call runs a coordinator call with the current ref. It must be called with
// callMu held. Losing ownership resolves the handle as lost.
func (h *txHandle) call(ctx context.Context, op string, fn func(ctx context.Context, ref TransactionRef) (*Transaction, error)) (*Transaction, error) {
	h.mu.Lock()
	if h.resolved {
		h.mu.Unlock()
		return nil, errResolved
	}
	ref := h.tx.Ref()
	h.mu.Unlock()

	tx, err := retryCall(ctx, h.retry, op, func(ctx context.Context) (*Transaction, error) {
		return fn(ctx, ref)
	})
	if err != nil {
		if errors.Is(err, types.ErrLostOwnership) {
			h.mu.Lock()
			if !h.resolved {
				h.resolveLocked(OutcomeLost)
			}
			h.mu.Unlock()
		}

		return nil, err
	}

	return tx, nil
}

func (h *txHandle) resolveLocked(outcome Outcome) {
	h.resolved = true
	h.outcome = outcome
	close(h.done)
	if h.onResolved != nil {
		h.onResolved(h.tx.Clone(), outcome)
	}
}

// processingContext is the ProcessingContext handed to a Handler.
type processingContext struct {
	ctx         context.Context //nolint:containedctx // invocation context exposed through Context()
	handle      *txHandle
	processorID string
	attrs       map[string]any
}

var _ ProcessingContext = (*processingContext)(nil)

func newProcessingContext(ctx context.Context, h *txHandle, processorID string) *processingContext {
	return &processingContext{ctx: ctx, handle: h, processorID: processorID}
}

func (pc *processingContext) Context() context.Context { return pc.ctx }
func (pc *processingContext) SeriesID() string         { return pc.handle.transaction().SeriesID }
func (pc *processingContext) ProcessorID() string      { return pc.processorID }
func (pc *processingContext) TransactionID() string    { return pc.handle.transaction().ID }
func (pc *processingContext) StartPosition() Position  { return pc.handle.transaction().StartPosition }
func (pc *processingContext) EndPosition() Position    { return pc.handle.transaction().EndPosition }
func (pc *processingContext) Attempts() int            { return pc.handle.transaction().Attempts }
func (pc *processingContext) Timeout() time.Time       { return pc.handle.transaction().Timeout }
func (pc *processingContext) Detail() []byte           { return pc.handle.transaction().Detail }

func (pc *processingContext) RenewTimeout(t time.Time) bool {
	return pc.handle.renew(t) == nil
}

func (pc *processingContext) RenewTimeoutAfter(d time.Duration) bool {
	return pc.RenewTimeout(pc.handle.now().Add(d))
}

func (pc *processingContext) UpdateDetail(detail []byte) bool {
	return pc.handle.updateDetail(detail) == nil
}

func (pc *processingContext) Put(key string, value any) any {
	if pc.attrs == nil {
		pc.attrs = make(map[string]any)
	}
	prev := pc.attrs[key]
	pc.attrs[key] = value

	return prev
}

func (pc *processingContext) Get(key string) any {
	return pc.attrs[key]
}

func (pc *processingContext) Remove(key string) any {
	prev, ok := pc.attrs[key]
	if ok {
		delete(pc.attrs, key)
	}

	return prev
}

func (pc *processingContext) Finisher() TransactionFinisher {
	pc.handle.detach()
	return &finisher{handle: pc.handle}
}

// finisher is the detached TransactionFinisher of a transaction.
type finisher struct {
	handle *txHandle
}

var _ TransactionFinisher = (*finisher)(nil)

func (f *finisher) Finish() bool {
	return f.handle.finish(OpenPosition, OutcomeSucceeded) == nil
}

func (f *finisher) Abort() bool {
	return f.handle.abort() == nil
}

func (f *finisher) RenewTimeout(t time.Time) bool {
	return f.handle.renew(t) == nil
}

func (f *finisher) UpdateDetail(detail []byte) bool {
	return f.handle.updateDetail(detail) == nil
}
