package seqtx

import "github.com/arloliu/seqtx/types"

// Re-export types from the types package.
//
// The engine, the coordinator and the adapters all depend on `types` rather
// than on the root package, which keeps the import graph acyclic while users
// can still write seqtx.Transaction, seqtx.Handler and so on.
type (
	Position         = types.Position
	Series           = types.Series
	SeriesState      = types.SeriesState
	Transaction      = types.Transaction
	TransactionRef   = types.TransactionRef
	TransactionState = types.TransactionState
	ClaimRequest     = types.ClaimRequest
	Item             = types.Item
	PullRequest      = types.PullRequest
	PullResult       = types.PullResult
	Entry            = types.Entry
	ProcessorState   = types.ProcessorState
	Phase            = types.Phase
	Outcome          = types.Outcome
	StickyMode       = types.StickyMode
	RetryLimitMode   = types.RetryLimitMode
)

// Re-export interfaces from the types package for convenience.
type (
	Coordinator         = types.Coordinator
	Store               = types.Store
	Supplier            = types.Supplier
	Handler             = types.Handler
	HandlerFunc         = types.HandlerFunc
	ProcessingContext   = types.ProcessingContext
	TransactionFinisher = types.TransactionFinisher
	MetricsCollector    = types.MetricsCollector
	Logger              = types.Logger
	Hooks               = types.Hooks
)

// OpenPosition marks an unbounded upper position.
const OpenPosition = types.OpenPosition

// Re-export ProcessorState constants.
const (
	StateNew      = types.StateNew
	StateStarted  = types.StateStarted
	StateRunning  = types.StateRunning
	StateStopping = types.StateStopping
	StateFinished = types.StateFinished
)

// Re-export Phase constants.
const (
	PhaseIdle       = types.PhaseIdle
	PhaseAcquiring  = types.PhaseAcquiring
	PhaseProcessing = types.PhaseProcessing
	PhaseFinishing  = types.PhaseFinishing
)

// Re-export TransactionState constants.
const (
	TransactionInProgress = types.TransactionInProgress
	TransactionSucceeded  = types.TransactionSucceeded
	TransactionFailed     = types.TransactionFailed
)

// Re-export Outcome constants.
const (
	OutcomeSucceeded = types.OutcomeSucceeded
	OutcomeFailed    = types.OutcomeFailed
	OutcomeNoData    = types.OutcomeNoData
	OutcomeLost      = types.OutcomeLost
	OutcomeDetached  = types.OutcomeDetached
)

// Re-export StickyMode constants.
const (
	StickyNever                          = types.StickyNever
	StickyWhenOpenRangeSucceeded         = types.StickyWhenOpenRangeSucceeded
	StickyWhenOpenRangeSucceededOrNoData = types.StickyWhenOpenRangeSucceededOrNoData
)

// Re-export RetryLimitMode constants.
const (
	RetryLimitConcurrent = types.RetryLimitConcurrent
	RetryLimitAttempts   = types.RetryLimitAttempts
)

// ComparePositions orders two positions, see types.ComparePositions.
func ComparePositions(a, b Position) int {
	return types.ComparePositions(a, b)
}
