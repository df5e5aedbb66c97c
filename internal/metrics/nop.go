// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/seqtx/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	p, err := seqtx.NewProcessing("job", &cfg, coord, h, sup, series, seqtx.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ProcessorMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* processorID */ string, _ /* from */, _ /* to */ types.ProcessorState) {
}

// RecordClaim discards the claim metric.
func (n *NopMetrics) RecordClaim(_ /* seriesID */, _ /* result */ string) {}

// RecordAdmission discards the admission gauges.
func (n *NopMetrics) RecordAdmission(_ /* inProgress */, _ /* retrying */ int) {}

// TransactionMetrics implementation

// RecordTransactionOutcome discards the outcome metric.
func (n *NopMetrics) RecordTransactionOutcome(_ /* seriesID */ string, _ /* outcome */ types.Outcome, _ /* attempts */ int) {
}

// RecordBatch discards the batch metric.
func (n *NopMetrics) RecordBatch(_ /* seriesID */ string, _ /* items */ int, _ /* duration */ float64) {}

// RecordLeaseRenewal discards the renewal metric.
func (n *NopMetrics) RecordLeaseRenewal(_ /* success */ bool) {}

// StoreMetrics implementation

// RecordStoreOperation discards the store operation metric.
func (n *NopMetrics) RecordStoreOperation(_ /* operation */ string, _ /* duration */ float64, _ /* success */ bool) {
}

// RecordStoreRetry discards the store retry metric.
func (n *NopMetrics) RecordStoreRetry(_ /* operation */ string) {}
