package seqtx

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// ProcessorStatus is a point-in-time snapshot of one processor.
type ProcessorStatus struct {
	// ID is the processor id.
	ID string

	// State is the lifecycle state.
	State ProcessorState

	// Phase is the sub-state while running.
	Phase Phase

	// CurrentSeriesID is the series being processed, "" when idle.
	CurrentSeriesID string

	// LastTransactionID is the id of the most recently claimed transaction.
	LastTransactionID string

	// LastStart and LastEnd describe the range of the most recently resolved transaction.
	LastStart Position
	LastEnd   Position

	// LastAttempts is the attempt number of the most recently claimed transaction.
	LastAttempts int

	// LastOutcome is how the most recently resolved transaction ended.
	LastOutcome Outcome

	// Outcome counters.
	Succeeded int64
	Failed    int64
	Lost      int64
	NoData    int64

	// InfraFailures counts store or supplier failures that exhausted their retries.
	InfraFailures int64

	// LastError is the message of the most recent infrastructure failure.
	LastError string

	// UpdatedAt is the time of the last change.
	UpdatedAt time.Time
}

// Status is an eventually-consistent snapshot of a processing job.
type Status struct {
	// JobID identifies the job.
	JobID string

	// Processors maps processor ids to their snapshots.
	Processors map[string]ProcessorStatus

	// InProgress is the number of open new-range transactions of the job.
	InProgress int

	// Retrying is the number of open retried transactions of the job.
	Retrying int

	// Series is the number of series assigned to the job.
	Series int

	// Drained is the number of series that reached their declared upper bound.
	Drained int

	// Exhausted maps the ids of series whose current range used up
	// MaxTransactionAttempts to that FAILED range. The job stops claiming such
	// a series; it needs an operator to resolve the range (see
	// coordinator.Clear) and a new job run.
	Exhausted map[string]Transaction
}

// AllFinished reports whether there is at least one processor and every
// processor reached StateFinished.
func (s Status) AllFinished() bool {
	if len(s.Processors) == 0 {
		return false
	}
	for _, p := range s.Processors {
		if p.State != StateFinished {
			return false
		}
	}

	return true
}

// Complete reports whether every processor finished and every series drained.
// A job with an open series never completes on its own. Processors also
// finish when the only series left are exhausted, in which case AllFinished
// is true and Complete is false.
func (s Status) Complete() bool {
	return s.AllFinished() && s.Drained == s.Series
}

// statusEntry holds the snapshot of one processor.
//
// The owning processor is the main writer; detached finishers update the
// outcome counters from other goroutines, hence the mutex.
type statusEntry struct {
	mu sync.Mutex
	s  ProcessorStatus
}

func (e *statusEntry) update(now time.Time, fn func(s *ProcessorStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.s)
	e.s.UpdatedAt = now
}

func (e *statusEntry) snapshot() ProcessorStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.s
}

// statusBoard aggregates the processor snapshots of a job.
type statusBoard struct {
	entries *xsync.Map[string, *statusEntry]
}

func newStatusBoard() *statusBoard {
	return &statusBoard{entries: xsync.NewMap[string, *statusEntry]()}
}

// register adds an entry for id and reports false when id is already present.
func (b *statusBoard) register(id string, now time.Time) (*statusEntry, bool) {
	entry := &statusEntry{s: ProcessorStatus{ID: id, State: StateNew, UpdatedAt: now}}
	_, loaded := b.entries.LoadOrStore(id, entry)
	if loaded {
		return nil, false
	}

	return entry, true
}

func (b *statusBoard) snapshot() map[string]ProcessorStatus {
	out := make(map[string]ProcessorStatus)
	b.entries.Range(func(id string, e *statusEntry) bool {
		out[id] = e.snapshot()
		return true
	})

	return out
}

// recordOutcome applies a resolved transaction to the counters of s.
func recordOutcome(s *ProcessorStatus, tx *Transaction, outcome Outcome) {
	s.LastStart = tx.StartPosition
	s.LastEnd = tx.EndPosition
	s.LastOutcome = outcome

	switch outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeLost:
		s.Lost++
	case OutcomeNoData:
		s.NoData++
	}
}
