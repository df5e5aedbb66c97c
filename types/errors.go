package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the seqtx library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Processing, Coordinator, Store, etc.)
//   - Use consistent messages across similar error types

// Processing errors - Public API errors returned by the engine.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCoordinatorRequired is returned when the coordinator is nil.
	ErrCoordinatorRequired = errors.New("coordinator is required")

	// ErrSupplierRequired is returned when the supplier is nil.
	ErrSupplierRequired = errors.New("supplier is required")

	// ErrHandlerRequired is returned when the handler is nil.
	ErrHandlerRequired = errors.New("handler is required")

	// ErrNoSeries is returned when a job is created without series.
	ErrNoSeries = errors.New("at least one series is required")

	// ErrDuplicateSeries is returned when a series id is assigned twice.
	ErrDuplicateSeries = errors.New("duplicate series id")

	// ErrDuplicateProcessor is returned when a processor id is registered twice.
	ErrDuplicateProcessor = errors.New("duplicate processor id")

	// ErrInvalidProcessorID is returned when a processor id is empty.
	ErrInvalidProcessorID = errors.New("invalid processor id")

	// ErrAlreadyStarted is returned when the job was already started.
	ErrAlreadyStarted = errors.New("processing already started")

	// ErrProcessorRunning is returned when Run is called twice on the same processor.
	ErrProcessorRunning = errors.New("processor already running")
)

// Coordinator errors - Outcomes of the claim/renew/finish/abort state machine.
var (
	// ErrSeriesBusy is returned by ClaimNext when another owner holds a live lease.
	ErrSeriesBusy = errors.New("series has a live transaction")

	// ErrSeriesDrained is returned by ClaimNext when the series reached its declared upper bound.
	ErrSeriesDrained = errors.New("series has no further range")

	// ErrNotAdmitted is returned by ClaimNext when the claim kind (new or retry) was not admitted.
	ErrNotAdmitted = errors.New("claim not admitted")

	// ErrRetryLimitReached is returned by ClaimNext when a failed range exhausted its attempts.
	ErrRetryLimitReached = errors.New("transaction attempts exhausted")

	// ErrLostOwnership is returned when a guarded mutation found that the lease moved on.
	// It is not a failure: the work of the caller was discarded and will be retried elsewhere.
	ErrLostOwnership = errors.New("transaction ownership lost")

	// ErrConcurrentModification is returned when a compare-and-swap lost a race.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvalidTransition is returned for a mutation not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid transaction state transition")
)

// Store errors - Returned by Store implementations.
var (
	// ErrKeyNotFound is returned when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExists is returned by Create when the key already exists.
	ErrKeyExists = errors.New("key already exists")

	// ErrVersionMismatch is returned by Update when the expected version is stale.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrStoreUnavailable indicates a transient infrastructure failure.
	// Callers retry it under a backoff strategy; it never signals a business outcome.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Supplier errors.
var (
	// ErrSupplierUnavailable indicates a transient failure pulling data.
	ErrSupplierUnavailable = errors.New("supplier unavailable")

	// ErrUnknownSeries is returned by a supplier for a series it does not serve.
	ErrUnknownSeries = errors.New("unknown series")
)

// IsNothingToClaim reports whether a ClaimNext error means "nothing claimable now"
// rather than a failure.
//
// Parameters:
//   - err: The error returned by ClaimNext
//
// Returns:
//   - bool: true for busy, drained, not admitted, attempts exhausted or a lost race
func IsNothingToClaim(err error) bool {
	return errors.Is(err, ErrSeriesBusy) ||
		errors.Is(err, ErrSeriesDrained) ||
		errors.Is(err, ErrNotAdmitted) ||
		errors.Is(err, ErrRetryLimitReached) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsInfrastructureError reports whether err is a transient store or supplier failure.
//
// Besides the sentinel errors, plain network failures that were not wrapped by
// an adapter ("connection refused", "i/o timeout") are treated as transient.
func IsInfrastructureError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrSupplierUnavailable) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout")
}
