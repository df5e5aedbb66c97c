package seqtx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/seqtx/internal/lease"
	"github.com/arloliu/seqtx/internal/logger"
	"github.com/arloliu/seqtx/strategy"
	"github.com/arloliu/seqtx/types"
)

var errAdmissionFull = errors.New("admission full")

// Processor is one worker of a processing job.
//
// A processor runs the claim loop on the goroutine that calls Run:
//
//	select series → reserve admission → claim → pull → handle → resolve
//
// Processors of the same job never share a transaction; the coordinator's
// compare-and-swap decides every claim, and the job keeps an in-process
// registry only to avoid pointless claims on series a sibling already holds.
type Processor struct {
	job    *Processing
	id     string
	status *statusEntry
	logger Logger

	mu      sync.Mutex
	state   ProcessorState
	running bool
}

func newProcessor(job *Processing, id string, entry *statusEntry) *Processor {
	return &Processor{
		job:    job,
		id:     id,
		status: entry,
		logger: logger.With(job.logger, "processor", id),
		state:  StateNew,
	}
}

// ID returns the processor id.
func (p *Processor) ID() string {
	return p.id
}

// State returns the current lifecycle state.
func (p *Processor) State() ProcessorState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Run blocks until the job's start barrier is released, then runs the claim
// loop until every series drained, Stop was called, or ctx was cancelled.
//
// An in-hand transaction is always resolved before Run returns.
//
// Parameters:
//   - ctx: Context for cancellation; cancelling it behaves like Stop for this processor
//
// Returns:
//   - error: ErrProcessorRunning when run twice, ctx.Err() when ctx was cancelled
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running || p.state != StateNew {
		p.mu.Unlock()
		return ErrProcessorRunning
	}
	p.running = true
	p.mu.Unlock()

	defer p.job.processorFinished()

	select {
	case <-p.job.startCh:
	case <-p.job.stopCh:
		p.transition(StateFinished)
		return nil
	case <-ctx.Done():
		p.transition(StateFinished)
		return ctx.Err()
	}

	p.transition(StateStarted)
	p.transition(StateRunning)

	p.loop(ctx)

	if p.State() == StateRunning && p.stopRequested(ctx) {
		p.transition(StateStopping)
	}
	p.setPhase(PhaseIdle, "")
	p.transition(StateFinished)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return nil
}

func (p *Processor) loop(ctx context.Context) {
	var last strategy.LastResult
	idle := 0

	for !p.stopRequested(ctx) {
		if p.job.allSettled() {
			p.logger.Debug("all series drained or exhausted")
			return
		}

		result, worked := p.iterate(ctx, last)
		if worked {
			last = result
			idle = 0

			continue
		}

		idle++
		p.setPhase(PhaseIdle, "")
		if !p.sleep(ctx, p.job.wait.Delay(idle)) {
			return
		}
	}
}

// iterate tries the candidate series in order and processes the first one
// that can be claimed. It reports false when nothing was claimable.
func (p *Processor) iterate(ctx context.Context, last strategy.LastResult) (strategy.LastResult, bool) {
	p.setPhase(PhaseAcquiring, "")

	tried := make(map[string]bool)
	skip := func(id string) bool { return tried[id] || p.skip(id) }

	for !p.stopRequested(ctx) {
		id, ok := p.job.selectSeries(p.id, last, skip)
		if !ok {
			return strategy.LastResult{}, false
		}
		tried[id] = true

		series := p.job.series[id]
		tx, t, err := p.claim(ctx, series)
		if err != nil {
			p.job.releaseSeries(id, p.id)
			if errors.Is(err, errAdmissionFull) {
				return strategy.LastResult{}, false
			}
			p.claimFailed(ctx, series, err)

			continue
		}

		result := p.process(ctx, series, tx, t)
		p.job.releaseSeries(id, p.id)

		return result, true
	}

	return strategy.LastResult{}, false
}

// skip leaves out settled series and series held by sibling processors.
func (p *Processor) skip(seriesID string) bool {
	if p.job.isDrained(seriesID) || p.job.isExhausted(seriesID) {
		return true
	}
	holder, ok := p.job.leases.Load(seriesID)

	return ok && holder != p.id
}

func (p *Processor) claim(ctx context.Context, series Series) (*Transaction, *ticket, error) {
	t := p.job.admission.reserve()
	if !t.allowNew() && !t.allowRetry() {
		return nil, nil, errAdmissionFull
	}

	cfg := &p.job.cfg
	tx, err := retryCall(ctx, p.job.retry, "claim", func(ctx context.Context) (*Transaction, error) {
		return p.job.coord.ClaimNext(ctx, ClaimRequest{
			Series:      series,
			ProcessorID: p.id,
			Timeout:     p.job.now().Add(cfg.InitialTransactionTimeout),
			AllowNew:    t.allowNew(),
			AllowRetry:  t.allowRetry(),
			MaxAttempts: cfg.maxAttempts(),
		})
	})
	if err != nil {
		t.release()
		return nil, nil, err
	}

	t.settle(tx.IsRetry())
	if tx.IsRetry() {
		p.job.metrics.RecordClaim(series.ID, "retry")
	} else {
		p.job.metrics.RecordClaim(series.ID, "new")
	}

	p.status.update(p.job.now(), func(s *ProcessorStatus) {
		s.CurrentSeriesID = series.ID
		s.LastTransactionID = tx.ID
		s.LastAttempts = tx.Attempts
	})
	p.logger.Debug("transaction claimed", "transaction", tx.String())

	return tx, t, nil
}

func (p *Processor) claimFailed(ctx context.Context, series Series, err error) {
	p.job.metrics.RecordClaim(series.ID, claimResult(err))

	switch {
	case errors.Is(err, types.ErrSeriesDrained):
		p.job.markDrained(series.ID)
	case errors.Is(err, types.ErrRetryLimitReached):
		p.exhausted(ctx, series, err)
	case types.IsNothingToClaim(err):
		p.logger.Debug("nothing to claim", "series", series.ID, "reason", err)
	default:
		p.infraFailure("claim", err)
	}
}

// exhausted records a series whose current range used up its attempts and
// reports it through the error hook.
func (p *Processor) exhausted(ctx context.Context, series Series, cause error) {
	state, err := retryCall(ctx, p.job.retry, "series", func(ctx context.Context) (SeriesState, error) {
		return p.job.coord.Series(ctx, series.ID)
	})

	tx := Transaction{SeriesID: series.ID}
	switch {
	case err != nil:
		p.logger.Warn("failed to read exhausted series", "series", series.ID, "error", err)
	case state.Current != nil:
		tx = *state.Current.Clone()
	}

	p.job.markExhausted(series.ID, tx)
	p.job.fireError(fmt.Errorf("processor %s: series %s: %w", p.id, series.ID, cause))
}

// process pulls the data of a claimed transaction, invokes the handler and
// resolves the transaction.
func (p *Processor) process(ctx context.Context, series Series, tx *Transaction, t *ticket) strategy.LastResult {
	p.setPhase(PhaseProcessing, series.ID)

	h := newTxHandle(ctx, p.job.coord, p.job.retry, p.job.now, tx, func(resolved *Transaction, outcome Outcome) {
		t.release()
		p.resolved(resolved, outcome)
	})

	keeper := lease.New(h, lease.Config{
		Extension:        p.job.cfg.InitialTransactionTimeout,
		Margin:           p.job.cfg.renewalMargin(),
		OperationTimeout: p.job.cfg.StoreOperationTimeout,
		Now:              p.job.now,
	}, p.logger, p.job.metrics)
	if err := keeper.Start(); err != nil {
		p.logger.Error("failed to start lease keeper", "error", err)
	}

	outcome := p.handle(ctx, series, h)
	_ = keeper.Stop()

	if outcome == OutcomeDetached && !h.isResolved() {
		go h.watchExpiry()
	}

	return strategy.LastResult{SeriesID: series.ID, OpenRange: tx.OpenRange, Outcome: outcome}
}

// handle runs the pull, handler and resolve steps and returns the outcome
// seen by this processor.
func (p *Processor) handle(ctx context.Context, series Series, h *txHandle) Outcome {
	tx := h.transaction()
	limit := tx.EndPosition
	fixed := limit != OpenPosition
	if !fixed {
		limit = series.To
	}

	items, reached, err := p.pull(ctx, tx, limit, fixed)
	switch {
	case err != nil && ctx.Err() != nil && !fixed:
		// cancelled before any record was seen: release the range untouched
		return p.finish(h, OpenPosition, OutcomeNoData)
	case err != nil && ctx.Err() != nil:
		return p.abort(h)
	case err != nil:
		p.infraFailure("pull", err)
		return p.abort(h)
	}

	switch {
	case len(items) == 0 && fixed && types.PositionReached(reached, limit):
		// the range has no records left, e.g. a retention gap
		return p.finish(h, OpenPosition, OutcomeNoData)
	case len(items) == 0 && fixed:
		p.logger.Warn("records of a fixed range are unavailable", "transaction", tx.String(), "reached", reached)
		return p.abort(h)
	case len(items) == 0:
		end := OpenPosition
		if ComparePositions(reached, tx.StartPosition) > 0 {
			end = reached
		}

		return p.finish(h, end, OutcomeNoData)
	case fixed && !types.PositionReached(reached, limit):
		p.logger.Warn("incomplete pull of a fixed range", "transaction", tx.String(), "reached", reached)
		return p.abort(h)
	}

	if !fixed {
		if err := h.setEnd(reached); err != nil {
			return p.resolveError(h, "end", err)
		}
	}

	pc := newProcessingContext(ctx, h, p.id)
	start := time.Now()
	ok, herr := p.invoke(pc, items)
	p.job.metrics.RecordBatch(series.ID, len(items), time.Since(start).Seconds())

	// the handler may have resolved through its finisher, or lost the lease
	if outcome, resolved := h.resolution(); resolved {
		return outcome
	}
	if h.isDetached() {
		return OutcomeDetached
	}

	if p.stopRequested(ctx) && p.State() == StateRunning {
		p.transition(StateStopping)
	}

	if !ok || herr != nil {
		if herr != nil {
			p.logger.Warn("handler failed", "transaction", tx.ID, "series", series.ID, "error", herr)
		}

		return p.abort(h)
	}

	return p.finish(h, OpenPosition, OutcomeSucceeded)
}

// pull reads the records of [start, limit). A fixed range is read to its end
// so that a retry replays exactly the records of the first attempt.
func (p *Processor) pull(ctx context.Context, tx *Transaction, limit Position, fixed bool) ([]Item, Position, error) {
	req := PullRequest{
		SeriesID: tx.SeriesID,
		From:     tx.StartPosition,
		To:       limit,
		MaxItems: p.job.cfg.MaxBatchSize,
		MaxWait:  p.job.cfg.PollTimeout,
	}

	pullOnce := func(ctx context.Context) (PullResult, error) {
		return p.job.supplier.Pull(ctx, req)
	}

	res, err := retryCall(ctx, p.job.retry, "pull", pullOnce)
	if err != nil {
		return nil, OpenPosition, err
	}

	items, reached := res.Items, res.Reached
	for fixed && len(res.Items) > 0 && !types.PositionReached(reached, limit) {
		req.From = reached
		res, err = retryCall(ctx, p.job.retry, "pull", pullOnce)
		if err != nil {
			return nil, OpenPosition, err
		}
		items = append(items, res.Items...)
		reached = res.Reached
	}

	return items, reached, nil
}

func (p *Processor) invoke(pc *processingContext, batch []Item) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return p.job.handler.Process(pc, batch)
}

func (p *Processor) finish(h *txHandle, end Position, outcome Outcome) Outcome {
	p.setPhase(PhaseFinishing, h.transaction().SeriesID)
	if err := h.finish(end, outcome); err != nil {
		return p.resolveError(h, "finish", err)
	}

	return outcome
}

func (p *Processor) abort(h *txHandle) Outcome {
	p.setPhase(PhaseFinishing, h.transaction().SeriesID)
	if err := h.abort(); err != nil {
		return p.resolveError(h, "abort", err)
	}

	return OutcomeFailed
}

// resolveError maps a failed owner-side call to the outcome of the transaction.
func (p *Processor) resolveError(h *txHandle, op string, err error) Outcome {
	if errors.Is(err, types.ErrLostOwnership) {
		p.logger.Info("transaction ownership lost", "op", op, "error", err)
		h.abandon(OutcomeLost)

		return OutcomeLost
	}

	if types.IsInfrastructureError(err) {
		p.infraFailure(op, err)
	} else {
		p.logger.Error("transaction resolution rejected", "op", op, "error", err)
	}

	// the lease expires and the range is retried by whoever claims it next
	h.abandon(OutcomeFailed)

	return OutcomeFailed
}

// resolved records the final outcome of a transaction. It may run on a
// finisher goroutine.
func (p *Processor) resolved(tx *Transaction, outcome Outcome) {
	p.status.update(p.job.now(), func(s *ProcessorStatus) {
		recordOutcome(s, tx, outcome)
	})
	p.job.metrics.RecordTransactionOutcome(tx.SeriesID, outcome, tx.Attempts)
	p.job.fireResolved(tx, outcome)

	p.logger.Debug("transaction resolved", "transaction", tx.String(), "outcome", outcome)
}

func (p *Processor) infraFailure(op string, err error) {
	p.status.update(p.job.now(), func(s *ProcessorStatus) {
		s.InfraFailures++
		s.LastError = fmt.Sprintf("%s: %v", op, err)
	})
	p.logger.Error("infrastructure failure", "op", op, "error", err)
	p.job.fireError(fmt.Errorf("processor %s: %s: %w", p.id, op, err))
}

func (p *Processor) transition(to ProcessorState) {
	p.mu.Lock()
	from := p.state
	if from == to || from == StateFinished {
		p.mu.Unlock()
		return
	}
	p.state = to
	p.mu.Unlock()

	p.status.update(p.job.now(), func(s *ProcessorStatus) {
		s.State = to
	})

	p.logger.Info("state transition", "from", from.String(), "to", to.String())
	p.job.metrics.RecordStateTransition(p.id, from, to)
	p.job.fireStateChanged(p.id, from, to)
}

func (p *Processor) setPhase(phase Phase, seriesID string) {
	p.status.update(p.job.now(), func(s *ProcessorStatus) {
		s.Phase = phase
		s.CurrentSeriesID = seriesID
	})
}

func (p *Processor) stopRequested(ctx context.Context) bool {
	return p.job.stopRequested() || ctx.Err() != nil
}

// sleep waits d and reports false when a stop arrived first.
func (p *Processor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !p.stopRequested(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.job.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// claimResult maps a claim error to its metrics label.
func claimResult(err error) string {
	switch {
	case errors.Is(err, types.ErrSeriesBusy):
		return "busy"
	case errors.Is(err, types.ErrSeriesDrained):
		return "drained"
	case errors.Is(err, types.ErrNotAdmitted):
		return "not_admitted"
	case errors.Is(err, types.ErrRetryLimitReached):
		return "exhausted"
	case errors.Is(err, types.ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}
