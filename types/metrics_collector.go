package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from processor goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ProcessorMetrics
	TransactionMetrics
	StoreMetrics
}

// ProcessorMetrics defines metrics for processor lifecycle and the claim loop.
type ProcessorMetrics interface {
	// RecordStateTransition records a processor state transition.
	RecordStateTransition(processorID string, from, to ProcessorState)

	// RecordClaim records a claim attempt.
	//
	// Parameters:
	//   - seriesID: Series the claim was attempted on
	//   - result: "new", "retry", "busy", "drained", "not_admitted", "exhausted", "conflict" or "error"
	RecordClaim(seriesID string, result string)

	// RecordAdmission sets the current job-wide number of open new and retried transactions (gauges).
	RecordAdmission(inProgress, retrying int)
}

// TransactionMetrics defines metrics for transaction processing.
type TransactionMetrics interface {
	// RecordTransactionOutcome records how a transaction ended.
	//
	// Parameters:
	//   - seriesID: Series of the transaction
	//   - outcome: Resolution outcome
	//   - attempts: Attempt number of the transaction
	RecordTransactionOutcome(seriesID string, outcome Outcome, attempts int)

	// RecordBatch records a handler invocation.
	//
	// Parameters:
	//   - seriesID: Series of the batch
	//   - items: Number of items handed to the handler
	//   - duration: Handler duration in seconds
	RecordBatch(seriesID string, items int, duration float64)

	// RecordLeaseRenewal records a lease renewal attempt.
	RecordLeaseRenewal(success bool)
}

// StoreMetrics defines metrics for coordinator store operations and supplier pulls.
type StoreMetrics interface {
	// RecordStoreOperation records a store operation made on behalf of the engine.
	//
	// Parameters:
	//   - operation: "claim", "renew", "detail", "end", "finish", "abort", or "pull" for supplier calls
	//   - duration: Time taken in seconds
	//   - success: false for infrastructure failures
	RecordStoreOperation(operation string, duration float64, success bool)

	// RecordStoreRetry records a retry of a transient store failure.
	RecordStoreRetry(operation string)
}
