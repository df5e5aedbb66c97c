package types

import (
	"fmt"
	"time"
)

// TransactionState represents the state of a transaction record.
type TransactionState int

const (
	// TransactionInProgress indicates the transaction is leased by its owner.
	TransactionInProgress TransactionState = iota + 1

	// TransactionSucceeded indicates the range was committed.
	TransactionSucceeded

	// TransactionFailed indicates the range was aborted and is eligible for reclaim.
	TransactionFailed
)

// String returns the string representation of the transaction state.
func (s TransactionState) String() string {
	switch s {
	case TransactionInProgress:
		return "IN_PROGRESS"
	case TransactionSucceeded:
		return "SUCCEEDED"
	case TransactionFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Transaction is a claimed, leased range of a series' position space.
//
// A transaction is created IN_PROGRESS by a successful claim, mutated in place
// only by its current owner, and terminated by finish, abort, or lease expiry
// observed by another processor.
type Transaction struct {
	// SeriesID identifies the series the range belongs to.
	SeriesID string `json:"seriesId"`

	// ID is unique within the series.
	ID string `json:"id"`

	// StartPosition is the inclusive start of the range.
	StartPosition Position `json:"start"`

	// EndPosition is the exclusive end of the range. OpenPosition until the
	// range is fixed by the owner.
	EndPosition Position `json:"end,omitempty"`

	// State is the current state of the transaction.
	State TransactionState `json:"state"`

	// ProcessorID is the current owner.
	ProcessorID string `json:"processorId"`

	// Timeout is the lease deadline.
	Timeout time.Time `json:"timeout"`

	// Attempts counts claims of this range, starting at 1.
	Attempts int `json:"attempts"`

	// Detail is an opaque, owner-settable payload for resumable progress.
	Detail []byte `json:"detail,omitempty"`

	// OpenRange reports whether the range was claimed without an upper bound.
	OpenRange bool `json:"openRange"`

	// CreatedAt is the time of the first claim.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `json:"updatedAt"`

	// Version is the store version observed when the transaction was read or written.
	Version uint64 `json:"-"`
}

// IsRetry reports whether the transaction is a reclaim of a previously failed range.
func (t *Transaction) IsRetry() bool {
	return t.Attempts > 1
}

// Expired reports whether the transaction is in progress and its lease has passed.
func (t *Transaction) Expired(now time.Time) bool {
	return t.State == TransactionInProgress && !now.Before(t.Timeout)
}

// Ref returns the ownership reference used to guard mutations.
func (t *Transaction) Ref() TransactionRef {
	return TransactionRef{
		SeriesID:      t.SeriesID,
		TransactionID: t.ID,
		ProcessorID:   t.ProcessorID,
		Version:       t.Version,
	}
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.Detail != nil {
		c.Detail = append([]byte(nil), t.Detail...)
	}

	return &c
}

// String returns a compact description used in logs.
func (t *Transaction) String() string {
	end := t.EndPosition
	if end == OpenPosition {
		end = "open"
	}

	return fmt.Sprintf("%s/%s[%s, %s) %s attempts=%d owner=%s",
		t.SeriesID, t.ID, t.StartPosition, end, t.State, t.Attempts, t.ProcessorID)
}

// TransactionRef identifies a transaction together with the version its owner last observed.
//
// Every owner-side mutation presents a ref; the coordinator rejects it with
// ErrLostOwnership once the id, owner or version has moved on.
type TransactionRef struct {
	SeriesID      string
	TransactionID string
	ProcessorID   string
	Version       uint64
}
