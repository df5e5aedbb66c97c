package types

import "fmt"

// Series describes an ordered stream of work assigned to a job.
//
// A series defines a total order of non-overlapping position ranges. The
// coordinator keeps one committed cursor per series; the next claimed range
// always starts at that cursor.
type Series struct {
	// ID uniquely identifies the series within a job (e.g., "orders.3").
	ID string `json:"id" yaml:"id"`

	// From is the initial cursor used the first time the series is claimed.
	From Position `json:"from" yaml:"from"`

	// To is the declared upper bound (exclusive). OpenPosition means the
	// series never drains and is processed up to whatever is available.
	To Position `json:"to,omitempty" yaml:"to,omitempty"`
}

// Open reports whether the series has no declared upper bound.
func (s Series) Open() bool {
	return s.To == OpenPosition
}

// String returns a human-readable description used in logs.
func (s Series) String() string {
	if s.Open() {
		return fmt.Sprintf("%s[%s, open)", s.ID, s.From)
	}

	return fmt.Sprintf("%s[%s, %s)", s.ID, s.From, s.To)
}

// SeriesState is the stored head of a series.
type SeriesState struct {
	// SeriesID identifies the series.
	SeriesID string `json:"seriesId"`

	// Cursor is the end position of the last committed range.
	Cursor Position `json:"cursor"`

	// Current is the most recent transaction of the series in any state, nil if none.
	Current *Transaction `json:"current,omitempty"`

	// Committed counts succeeded non-empty ranges.
	Committed int64 `json:"committed"`

	// Version is the store version of the head record.
	Version uint64 `json:"-"`
}
