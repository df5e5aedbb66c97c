package types

import (
	"context"
	"time"
)

// PullRequest asks a Supplier for the records of one position range.
type PullRequest struct {
	// SeriesID selects the stream.
	SeriesID string

	// From is the inclusive start position.
	From Position

	// To is the exclusive end position, OpenPosition for "whatever is available".
	To Position

	// MaxItems bounds the number of returned items when > 0.
	MaxItems int

	// MaxWait bounds how long the supplier waits for data.
	MaxWait time.Duration
}

// PullResult carries the records of a pull.
type PullResult struct {
	// Items are ordered by position.
	Items []Item

	// Reached is the exclusive position after the last returned item, or From
	// when no item was returned.
	Reached Position
}

// Supplier yields ordered records for a series and position range.
//
// Implementations:
//   - supplier.Slice: in-memory slices with integer positions
//   - supplier/jetstream: a JetStream stream, positions are stream sequences
//   - supplier/kafka: a Kafka partition, positions are offsets
//
// Transient failures should wrap ErrSupplierUnavailable.
type Supplier interface {
	// Pull returns the records in [From, To) up to MaxItems, waiting at most MaxWait.
	Pull(ctx context.Context, req PullRequest) (PullResult, error)
}
