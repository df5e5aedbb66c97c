package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/seqtx/internal/logger"
	"github.com/arloliu/seqtx/types"
)

// Compile-time assertion that Coordinator implements types.Coordinator.
var _ types.Coordinator = (*Coordinator)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the clock used to evaluate lease expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l types.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNamespace isolates the records of one job when several jobs share a store.
func WithNamespace(ns string) Option {
	return func(c *Coordinator) { c.keys.namespace = ns }
}

// WithIDGenerator overrides transaction id generation. Ids must be unique
// within a series and contain only letters, digits, '-' and '_'.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// Coordinator is the store-backed sequential transaction coordinator.
//
// It holds no per-series state in memory and is safe for concurrent use by
// any number of processors, in this process or others sharing the store.
type Coordinator struct {
	store  types.Store
	keys   keyspace
	now    func() time.Time
	newID  func() (string, error)
	logger types.Logger
}

// New creates a coordinator over store.
//
// Parameters:
//   - store: Conditional-write store holding the records
//   - opts: Optional configuration
//
// Returns:
//   - *Coordinator: Coordinator ready for use
//
// Example:
//
//	st, _ := natskv.New(ctx, js, natskv.Config{Bucket: "billing-tx"})
//	coord := coordinator.New(st, coordinator.WithLogger(logger))
func New(store types.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		now:    time.Now,
		newID:  newTransactionID,
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// newTransactionID returns a UUIDv7, which sorts by creation time.
func newTransactionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// ClaimNext claims the next range of req.Series for req.ProcessorID.
//
// Decision order:
//  1. a live IN_PROGRESS lease held by anyone: types.ErrSeriesBusy
//  2. an expired lease or a FAILED transaction: retry of the same range with
//     Attempts+1, refused with types.ErrNotAdmitted when !AllowRetry and with
//     types.ErrRetryLimitReached when MaxAttempts is exhausted
//  3. cursor at or beyond Series.To: types.ErrSeriesDrained
//  4. a new range starting at the cursor with Attempts=1, refused with
//     types.ErrNotAdmitted when !AllowNew
//
// A lost compare-and-swap race yields types.ErrConcurrentModification.
// Store failures wrap types.ErrStoreUnavailable.
func (c *Coordinator) ClaimNext(ctx context.Context, req types.ClaimRequest) (*types.Transaction, error) {
	series := req.Series
	if series.ID == "" || req.ProcessorID == "" {
		return nil, fmt.Errorf("%w: series and processor ids are required", types.ErrInvalidTransition)
	}

	head, err := c.loadOrCreateHead(ctx, series)
	if err != nil {
		return nil, err
	}

	now := c.now()
	cur := head.Current

	var next *types.Transaction
	switch {
	case cur != nil && cur.State == types.TransactionInProgress && !cur.Expired(now):
		return nil, fmt.Errorf("%w: %s held by %s until %s",
			types.ErrSeriesBusy, series.ID, cur.ProcessorID, cur.Timeout.Format(time.RFC3339Nano))

	case cur != nil && (cur.State == types.TransactionFailed || cur.State == types.TransactionInProgress):
		if !req.AllowRetry {
			return nil, fmt.Errorf("%w: retry of %s", types.ErrNotAdmitted, series.ID)
		}
		if req.MaxAttempts > 0 && cur.Attempts >= req.MaxAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", types.ErrRetryLimitReached, cur, cur.Attempts)
		}

		if cur.State == types.TransactionInProgress {
			c.logger.Debug("lease takeover", "series", series.ID, "transaction", cur.ID,
				"previous_owner", cur.ProcessorID, "new_owner", req.ProcessorID)
		}

		next = cur.Clone()
		next.State = types.TransactionInProgress
		next.ProcessorID = req.ProcessorID
		next.Timeout = req.Timeout
		next.Attempts++
		next.UpdatedAt = now

	default:
		if types.PositionReached(head.Cursor, series.To) {
			return nil, fmt.Errorf("%w: %s at %s", types.ErrSeriesDrained, series.ID, head.Cursor)
		}
		if !req.AllowNew {
			return nil, fmt.Errorf("%w: new range of %s", types.ErrNotAdmitted, series.ID)
		}

		id, err := c.newID()
		if err != nil {
			return nil, fmt.Errorf("generate transaction id: %w", err)
		}

		next = &types.Transaction{
			SeriesID:      series.ID,
			ID:            id,
			StartPosition: head.Cursor,
			State:         types.TransactionInProgress,
			ProcessorID:   req.ProcessorID,
			Timeout:       req.Timeout,
			Attempts:      1,
			OpenRange:     series.Open(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	head.Current = next
	version, err := c.writeHead(ctx, head)
	if err != nil {
		if errors.Is(err, types.ErrVersionMismatch) || errors.Is(err, types.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: claim of %s", types.ErrConcurrentModification, series.ID)
		}

		return nil, err
	}

	next.Version = version

	return next.Clone(), nil
}

// Renew extends the lease of the referenced transaction to timeout.
//
// timeout must lie in the future. A renewal never shortens the lease.
func (c *Coordinator) Renew(ctx context.Context, ref types.TransactionRef, timeout time.Time) (*types.Transaction, error) {
	return c.mutate(ctx, ref, "renew", func(_ *types.SeriesState, tx *types.Transaction, now time.Time) error {
		if !timeout.After(now) {
			return fmt.Errorf("%w: renewal to %s is not in the future", types.ErrInvalidTransition, timeout.Format(time.RFC3339Nano))
		}
		if timeout.After(tx.Timeout) {
			tx.Timeout = timeout
		}

		return nil
	})
}

// UpdateDetail replaces the opaque detail payload of the referenced transaction.
func (c *Coordinator) UpdateDetail(ctx context.Context, ref types.TransactionRef, detail []byte) (*types.Transaction, error) {
	return c.mutate(ctx, ref, "detail", func(_ *types.SeriesState, tx *types.Transaction, _ time.Time) error {
		tx.Detail = append([]byte(nil), detail...)
		return nil
	})
}

// SetEndPosition fixes the end of a range claimed without one.
//
// The engine calls it after pulling data and before invoking the handler, so
// that a retry replays exactly the same range. Setting the already fixed end
// again is a no-op write.
func (c *Coordinator) SetEndPosition(ctx context.Context, ref types.TransactionRef, end types.Position) (*types.Transaction, error) {
	return c.mutate(ctx, ref, "end", func(_ *types.SeriesState, tx *types.Transaction, _ time.Time) error {
		if end == types.OpenPosition {
			return fmt.Errorf("%w: end position must not be open", types.ErrInvalidTransition)
		}
		if tx.EndPosition != types.OpenPosition && tx.EndPosition != end {
			return fmt.Errorf("%w: range already ends at %s", types.ErrInvalidTransition, tx.EndPosition)
		}
		if types.ComparePositions(end, tx.StartPosition) < 0 {
			return fmt.Errorf("%w: end %s before start %s", types.ErrInvalidTransition, end, tx.StartPosition)
		}
		tx.EndPosition = end

		return nil
	})
}

// Finish commits the referenced transaction and advances the series cursor.
//
// end may be OpenPosition to commit the fixed end of the range. A range that
// was never fixed and is finished without an end commits zero progress, which
// is how an open range that yielded no data is resolved.
func (c *Coordinator) Finish(ctx context.Context, ref types.TransactionRef, end types.Position) (*types.Transaction, error) {
	tx, err := c.mutate(ctx, ref, "finish", func(head *types.SeriesState, tx *types.Transaction, _ time.Time) error {
		final := end
		if final == types.OpenPosition {
			final = tx.EndPosition
		}
		if final == types.OpenPosition {
			final = tx.StartPosition
		}
		if tx.EndPosition != types.OpenPosition && final != tx.EndPosition {
			return fmt.Errorf("%w: range is fixed to end at %s", types.ErrInvalidTransition, tx.EndPosition)
		}
		if types.ComparePositions(final, tx.StartPosition) < 0 {
			return fmt.Errorf("%w: end %s before start %s", types.ErrInvalidTransition, final, tx.StartPosition)
		}

		tx.EndPosition = final
		tx.State = types.TransactionSucceeded
		head.Cursor = final
		if final != tx.StartPosition {
			head.Committed++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if tx.EndPosition != tx.StartPosition {
		c.recordHistory(ctx, tx)
	}

	return tx, nil
}

// Abort marks the referenced transaction FAILED, leaving its range for a retry claim.
func (c *Coordinator) Abort(ctx context.Context, ref types.TransactionRef) (*types.Transaction, error) {
	return c.mutate(ctx, ref, "abort", func(_ *types.SeriesState, tx *types.Transaction, _ time.Time) error {
		tx.State = types.TransactionFailed
		return nil
	})
}

// Series returns the head of a series. A series that was never claimed
// returns a zero state with Version 0.
func (c *Coordinator) Series(ctx context.Context, seriesID string) (types.SeriesState, error) {
	head, err := c.loadHead(ctx, seriesID)
	if errors.Is(err, types.ErrKeyNotFound) {
		return types.SeriesState{SeriesID: seriesID}, nil
	}
	if err != nil {
		return types.SeriesState{}, err
	}

	return *head, nil
}

// History returns the committed non-empty transactions of a series ordered by start position.
func (c *Coordinator) History(ctx context.Context, seriesID string) ([]types.Transaction, error) {
	entries, err := c.store.List(ctx, c.keys.historyPrefix(seriesID))
	if err != nil {
		return nil, err
	}

	out := make([]types.Transaction, 0, len(entries))
	for _, e := range entries {
		var tx types.Transaction
		if err := json.Unmarshal(e.Value, &tx); err != nil {
			return nil, fmt.Errorf("decode history record %s: %w", e.Key, err)
		}
		out = append(out, tx)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return types.ComparePositions(out[i].StartPosition, out[j].StartPosition) < 0
	})

	return out, nil
}

// Clear removes the head and the history of a series, resetting it to its declared start.
//
// It must not run while processors are working on the series.
func (c *Coordinator) Clear(ctx context.Context, seriesID string) error {
	entries, err := c.store.List(ctx, c.keys.historyPrefix(seriesID))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := c.store.Delete(ctx, e.Key); err != nil {
			return err
		}
	}

	return c.store.Delete(ctx, c.keys.head(seriesID))
}

// mutate applies fn to the referenced transaction under the ownership guard.
//
// The guard requires the head to still hold the same transaction, owner and
// version, in progress and not expired. Any mismatch, including a concurrent
// write winning the compare-and-swap, yields types.ErrLostOwnership.
func (c *Coordinator) mutate(
	ctx context.Context,
	ref types.TransactionRef,
	op string,
	fn func(head *types.SeriesState, tx *types.Transaction, now time.Time) error,
) (*types.Transaction, error) {
	head, err := c.loadHead(ctx, ref.SeriesID)
	if errors.Is(err, types.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s: series %s has no head", types.ErrLostOwnership, op, ref.SeriesID)
	}
	if err != nil {
		return nil, err
	}

	now := c.now()
	cur := head.Current
	if err := checkOwnership(head, ref, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx := cur.Clone()
	if err := fn(head, tx, now); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, tx.ID, err)
	}
	tx.UpdatedAt = now
	head.Current = tx

	version, err := c.writeHead(ctx, head)
	if err != nil {
		if errors.Is(err, types.ErrVersionMismatch) || errors.Is(err, types.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s %s raced with another writer", types.ErrLostOwnership, op, ref.TransactionID)
		}

		return nil, err
	}

	tx.Version = version

	return tx.Clone(), nil
}

func checkOwnership(head *types.SeriesState, ref types.TransactionRef, now time.Time) error {
	cur := head.Current
	switch {
	case cur == nil || cur.ID != ref.TransactionID:
		return fmt.Errorf("%w: transaction %s is no longer current", types.ErrLostOwnership, ref.TransactionID)
	case cur.ProcessorID != ref.ProcessorID:
		return fmt.Errorf("%w: transaction %s taken over by %s", types.ErrLostOwnership, ref.TransactionID, cur.ProcessorID)
	case head.Version != ref.Version:
		return fmt.Errorf("%w: transaction %s at version %d, expected %d",
			types.ErrLostOwnership, ref.TransactionID, head.Version, ref.Version)
	case cur.State != types.TransactionInProgress:
		return fmt.Errorf("%w: transaction %s already %s", types.ErrLostOwnership, ref.TransactionID, cur.State)
	case cur.Expired(now):
		return fmt.Errorf("%w: lease of %s expired at %s",
			types.ErrLostOwnership, ref.TransactionID, cur.Timeout.Format(time.RFC3339Nano))
	default:
		return nil
	}
}

func (c *Coordinator) recordHistory(ctx context.Context, tx *types.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		c.logger.Error("failed to encode history record", "series", tx.SeriesID, "transaction", tx.ID, "error", err)
		return
	}

	// the head write above is the commit point; history is best effort
	if _, err := c.store.Create(ctx, c.keys.history(tx.SeriesID, tx.ID), data); err != nil && !errors.Is(err, types.ErrKeyExists) {
		c.logger.Warn("failed to write history record", "series", tx.SeriesID, "transaction", tx.ID, "error", err)
	}
}

func (c *Coordinator) loadHead(ctx context.Context, seriesID string) (*types.SeriesState, error) {
	entry, err := c.store.Get(ctx, c.keys.head(seriesID))
	if err != nil {
		return nil, err
	}

	var head types.SeriesState
	if err := json.Unmarshal(entry.Value, &head); err != nil {
		return nil, fmt.Errorf("decode head of %s: %w", seriesID, err)
	}
	head.Version = entry.Version
	if head.Current != nil {
		head.Current.Version = entry.Version
	}

	return &head, nil
}

func (c *Coordinator) loadOrCreateHead(ctx context.Context, series types.Series) (*types.SeriesState, error) {
	head, err := c.loadHead(ctx, series.ID)
	if !errors.Is(err, types.ErrKeyNotFound) {
		return head, err
	}

	head = &types.SeriesState{SeriesID: series.ID, Cursor: series.From}
	data, err := json.Marshal(head)
	if err != nil {
		return nil, fmt.Errorf("encode head of %s: %w", series.ID, err)
	}

	version, err := c.store.Create(ctx, c.keys.head(series.ID), data)
	if errors.Is(err, types.ErrKeyExists) {
		return c.loadHead(ctx, series.ID)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("series head created", "series", series.ID, "cursor", series.From)
	head.Version = version

	return head, nil
}

func (c *Coordinator) writeHead(ctx context.Context, head *types.SeriesState) (uint64, error) {
	data, err := json.Marshal(head)
	if err != nil {
		return 0, fmt.Errorf("encode head of %s: %w", head.SeriesID, err)
	}

	return c.store.Update(ctx, c.keys.head(head.SeriesID), data, head.Version)
}
