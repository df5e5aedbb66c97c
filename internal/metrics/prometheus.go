package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/seqtx/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Series ids are deliberately not used as labels; a job may run thousands
// of series and per-series state is available from Processing.Status.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions  *prometheus.CounterVec
	claims            *prometheus.CounterVec
	admissionOpen     *prometheus.GaugeVec
	outcomes          *prometheus.CounterVec
	attempts          prometheus.Histogram
	batchItems        prometheus.Histogram
	batchDuration     prometheus.Histogram
	leaseRenewals     *prometheus.CounterVec
	storeOpDuration   *prometheus.HistogramVec
	storeRetryCounter *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Collectors are registered lazily on first use.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "seqtx" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "seqtx"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "state_transitions_total",
			Help:      "Processor state transitions by source and target state.",
		}, []string{"from", "to"})

		p.claims = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "claims_total",
			Help:      "Claim attempts by result.",
		}, []string{"result"})

		p.admissionOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "admission",
			Name:      "open_transactions",
			Help:      "Currently admitted transactions by kind (new|retry).",
		}, []string{"kind"})

		p.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transaction",
			Name:      "outcomes_total",
			Help:      "Resolved transactions by outcome.",
		}, []string{"outcome"})

		p.attempts = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "transaction",
			Name:      "attempts",
			Help:      "Attempt number of resolved transactions.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		})

		p.batchItems = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "batch",
			Name:      "items",
			Help:      "Items handed to the handler per batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		})

		p.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Handler duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		})

		p.leaseRenewals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transaction",
			Name:      "lease_renewals_total",
			Help:      "Lease renewal attempts by result (success|failure).",
		}, []string{"result"})

		p.storeOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Coordinator store operation latency by operation and result.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op", "result"})

		p.storeRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Retries of transient store failures by operation.",
		}, []string{"op"})

		p.reg.MustRegister(p.stateTransitions)
		p.reg.MustRegister(p.claims)
		p.reg.MustRegister(p.admissionOpen)
		p.reg.MustRegister(p.outcomes)
		p.reg.MustRegister(p.attempts)
		p.reg.MustRegister(p.batchItems)
		p.reg.MustRegister(p.batchDuration)
		p.reg.MustRegister(p.leaseRenewals)
		p.reg.MustRegister(p.storeOpDuration)
		p.reg.MustRegister(p.storeRetryCounter)
	})
}

// ProcessorMetrics implementation

// RecordStateTransition counts a processor state transition.
func (p *PrometheusCollector) RecordStateTransition(_ string, from, to types.ProcessorState) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordClaim counts a claim attempt by result.
func (p *PrometheusCollector) RecordClaim(_ string, result string) {
	p.ensureRegistered()
	p.claims.WithLabelValues(result).Inc()
}

// RecordAdmission sets the admission gauges.
func (p *PrometheusCollector) RecordAdmission(inProgress, retrying int) {
	p.ensureRegistered()
	p.admissionOpen.WithLabelValues("new").Set(float64(inProgress))
	p.admissionOpen.WithLabelValues("retry").Set(float64(retrying))
}

// TransactionMetrics implementation

// RecordTransactionOutcome counts a resolved transaction and observes its attempt number.
func (p *PrometheusCollector) RecordTransactionOutcome(_ string, outcome types.Outcome, attempts int) {
	p.ensureRegistered()
	p.outcomes.WithLabelValues(outcome.String()).Inc()
	p.attempts.Observe(float64(attempts))
}

// RecordBatch observes batch size and handler duration.
func (p *PrometheusCollector) RecordBatch(_ string, items int, duration float64) {
	p.ensureRegistered()
	p.batchItems.Observe(float64(items))
	p.batchDuration.Observe(duration)
}

// RecordLeaseRenewal counts a lease renewal attempt.
func (p *PrometheusCollector) RecordLeaseRenewal(success bool) {
	p.ensureRegistered()
	p.leaseRenewals.WithLabelValues(resultLabel(success)).Inc()
}

// StoreMetrics implementation

// RecordStoreOperation observes store operation latency.
func (p *PrometheusCollector) RecordStoreOperation(operation string, duration float64, success bool) {
	p.ensureRegistered()
	p.storeOpDuration.WithLabelValues(operation, resultLabel(success)).Observe(duration)
}

// RecordStoreRetry counts a store retry.
func (p *PrometheusCollector) RecordStoreRetry(operation string) {
	p.ensureRegistered()
	p.storeRetryCounter.WithLabelValues(operation).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
