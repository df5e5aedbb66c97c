package seqtx

import "github.com/arloliu/seqtx/types"

// Sentinel errors returned by the engine and its collaborators.
//
// They are the same values as in the types package, so errors.Is works no
// matter which package the caller imports.
var (
	ErrInvalidConfig       = types.ErrInvalidConfig
	ErrCoordinatorRequired = types.ErrCoordinatorRequired
	ErrSupplierRequired    = types.ErrSupplierRequired
	ErrHandlerRequired     = types.ErrHandlerRequired
	ErrNoSeries            = types.ErrNoSeries
	ErrDuplicateSeries     = types.ErrDuplicateSeries
	ErrDuplicateProcessor  = types.ErrDuplicateProcessor
	ErrInvalidProcessorID  = types.ErrInvalidProcessorID
	ErrAlreadyStarted      = types.ErrAlreadyStarted
	ErrProcessorRunning    = types.ErrProcessorRunning

	ErrSeriesBusy             = types.ErrSeriesBusy
	ErrSeriesDrained          = types.ErrSeriesDrained
	ErrNotAdmitted            = types.ErrNotAdmitted
	ErrRetryLimitReached      = types.ErrRetryLimitReached
	ErrLostOwnership          = types.ErrLostOwnership
	ErrConcurrentModification = types.ErrConcurrentModification
	ErrInvalidTransition      = types.ErrInvalidTransition

	ErrStoreUnavailable    = types.ErrStoreUnavailable
	ErrSupplierUnavailable = types.ErrSupplierUnavailable
)
