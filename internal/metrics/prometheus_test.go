package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/seqtx/types"
)

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordStateTransition("p1", types.StateRunning, types.StateFinished)
	p.RecordClaim("s1", "new")
	p.RecordClaim("s2", "new")
	p.RecordClaim("s1", "busy")
	p.RecordAdmission(2, 1)
	p.RecordTransactionOutcome("s1", types.OutcomeSucceeded, 1)
	p.RecordTransactionOutcome("s1", types.OutcomeFailed, 2)
	p.RecordBatch("s1", 300, 0.02)
	p.RecordLeaseRenewal(true)
	p.RecordLeaseRenewal(false)
	p.RecordStoreOperation("claim", 0.001, true)
	p.RecordStoreRetry("claim")

	require.InDelta(t, 1, testutil.ToFloat64(p.stateTransitions.WithLabelValues("RUNNING", "FINISHED")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.claims.WithLabelValues("new")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.claims.WithLabelValues("busy")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.admissionOpen.WithLabelValues("new")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.admissionOpen.WithLabelValues("retry")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.outcomes.WithLabelValues("failed")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.leaseRenewals.WithLabelValues("failure")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.storeRetryCounter.WithLabelValues("claim")), 0)

	count, err := testutil.GatherAndCount(reg, "test_store_operation_duration_seconds", "test_batch_items")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestNewPrometheus_Defaults(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry(), "")
	require.Equal(t, "seqtx", p.namespace)
}
