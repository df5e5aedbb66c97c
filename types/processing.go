package types

import (
	"context"
	"time"
)

// ProcessingContext is handed to the Handler for the duration of one invocation.
//
// Implementations are not safe for concurrent use. Use Finisher to obtain a
// handle that can be moved to another goroutine.
type ProcessingContext interface {
	// Context returns the context of the invocation.
	Context() context.Context

	// SeriesID returns the id of the series being processed.
	SeriesID() string

	// ProcessorID returns the id of the processor running the handler.
	ProcessorID() string

	// TransactionID returns the id of the transaction.
	TransactionID() string

	// StartPosition returns the inclusive start of the range.
	StartPosition() Position

	// EndPosition returns the exclusive end of the range.
	EndPosition() Position

	// Attempts returns 1 on the first attempt, 2 after one failure, and so on.
	Attempts() int

	// Timeout returns the current lease deadline, reflecting successful renewals.
	Timeout() time.Time

	// Detail returns the detail payload, reflecting successful updates.
	Detail() []byte

	// RenewTimeout moves the lease deadline to t.
	RenewTimeout(t time.Time) bool

	// RenewTimeoutAfter moves the lease deadline to now plus d.
	RenewTimeoutAfter(d time.Duration) bool

	// UpdateDetail replaces the detail payload.
	UpdateDetail(detail []byte) bool

	// Put stores a handler-local value and returns the previous one.
	Put(key string, value any) any

	// Get returns a handler-local value.
	Get(key string) any

	// Remove deletes a handler-local value and returns it.
	Remove(key string) any

	// Finisher detaches the transaction from the invocation.
	//
	// Once called, the engine no longer finishes or aborts the transaction
	// after the handler returns; the caller must do so through the finisher
	// or let the lease expire.
	Finisher() TransactionFinisher
}

// TransactionFinisher resolves a transaction from any goroutine.
//
// Exactly one of Finish, Abort or passive lease expiry determines the final
// state. Later calls return false without side effects.
type TransactionFinisher interface {
	// Finish commits the transaction.
	Finish() bool

	// Abort fails the transaction so that it can be retried.
	Abort() bool

	// RenewTimeout moves the lease deadline to t.
	RenewTimeout(t time.Time) bool

	// UpdateDetail replaces the detail payload.
	UpdateDetail(detail []byte) bool
}

// Handler processes one batch of a transaction.
//
// Returning true finishes the transaction, false or a non-nil error aborts it.
// A panic is recovered and treated as an error.
type Handler interface {
	Process(pc ProcessingContext, batch []Item) (bool, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(pc ProcessingContext, batch []Item) (bool, error)

// Process calls f(pc, batch).
func (f HandlerFunc) Process(pc ProcessingContext, batch []Item) (bool, error) {
	return f(pc, batch)
}
