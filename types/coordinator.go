package types

import (
	"context"
	"time"
)

// ClaimRequest describes a claim attempt on one series.
type ClaimRequest struct {
	// Series is the series to claim, including its declared bounds.
	Series Series

	// ProcessorID is the claiming processor.
	ProcessorID string

	// Timeout is the lease deadline of the claimed transaction.
	Timeout time.Time

	// AllowNew admits claiming a new range.
	AllowNew bool

	// AllowRetry admits reclaiming a failed or expired range.
	AllowRetry bool

	// MaxAttempts caps attempts per transaction when > 0.
	MaxAttempts int
}

// Coordinator implements the sequential transaction state machine of a series.
//
// All mutations are arbitrated by the Store's compare-and-swap; no in-process
// lock is required for ownership. Implementations must be safe for concurrent use.
type Coordinator interface {
	// ClaimNext claims the next range of a series.
	//
	// Returns the owned transaction, or one of ErrSeriesBusy, ErrSeriesDrained,
	// ErrNotAdmitted, ErrRetryLimitReached or ErrConcurrentModification when
	// nothing can be claimed now (see IsNothingToClaim). Other errors wrap
	// ErrStoreUnavailable.
	ClaimNext(ctx context.Context, req ClaimRequest) (*Transaction, error)

	// Renew extends the lease of an owned transaction.
	Renew(ctx context.Context, ref TransactionRef, timeout time.Time) (*Transaction, error)

	// UpdateDetail replaces the opaque detail payload of an owned transaction.
	UpdateDetail(ctx context.Context, ref TransactionRef, detail []byte) (*Transaction, error)

	// SetEndPosition fixes the end of an open range so that retries replay the same range.
	SetEndPosition(ctx context.Context, ref TransactionRef, end Position) (*Transaction, error)

	// Finish commits the transaction and advances the series cursor.
	//
	// end overrides the end position of an open range; an open range finished
	// with an empty end commits zero progress.
	Finish(ctx context.Context, ref TransactionRef, end Position) (*Transaction, error)

	// Abort marks the transaction FAILED, leaving the range open for a later claim.
	Abort(ctx context.Context, ref TransactionRef) (*Transaction, error)

	// Series returns the stored head of a series.
	Series(ctx context.Context, seriesID string) (SeriesState, error)
}
