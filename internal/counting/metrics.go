package counting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricCountingRunsTotal          = "counting_runs_total"
	MetricCountingDuration           = "counting_duration_seconds"
	MetricAuditEntriesTotal          = "audit_entries_total"
	MetricAuditVerifyFailuresTotal   = "audit_verification_failures_total"
	MetricCountingFinalizationsTotal = "counting_finalizations_total"
)

// Outcome constants for counting run labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBusy    = "busy"
)

// Metrics contains Prometheus metrics for counting and audit operations.
// All operations are thread-safe.
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	auditEntries       *prometheus.CounterVec
	verifyFailures     *prometheus.CounterVec
	finalizationsTotal prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCountingRunsTotal,
				Help: "Total number of counting runs by algorithm and outcome",
			},
			[]string{"algorithm", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricCountingDuration,
				Help:    "Histogram of counting run duration in seconds by algorithm",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"algorithm"},
		),
		auditEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAuditEntriesTotal,
				Help: "Total number of audit chain entries appended by action type",
			},
			[]string{"action_type"},
		),
		verifyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAuditVerifyFailuresTotal,
				Help: "Total number of audit verification runs that found a broken chain",
			},
			[]string{"chain"},
		),
		finalizationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricCountingFinalizationsTotal,
				Help: "Total number of result versions marked final",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.runsTotal,
		m.runDuration,
		m.auditEntries,
		m.verifyFailures,
		m.finalizationsTotal,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRunsTotal increments the counting runs counter.
func (m *Metrics) IncRunsTotal(algorithm, outcome string) {
	m.runsTotal.WithLabelValues(algorithm, outcome).Inc()
}

// ObserveRunDuration records a counting run duration sample.
func (m *Metrics) ObserveRunDuration(algorithm string, seconds float64) {
	m.runDuration.WithLabelValues(algorithm).Observe(seconds)
}

// IncAuditEntries increments the appended audit entries counter.
func (m *Metrics) IncAuditEntries(actionType string) {
	m.auditEntries.WithLabelValues(actionType).Inc()
}

// IncVerifyFailures increments the failed verification counter.
// chain: "audit" or "ballot".
func (m *Metrics) IncVerifyFailures(chain string) {
	m.verifyFailures.WithLabelValues(chain).Inc()
}

// IncFinalizations increments the finalization counter.
func (m *Metrics) IncFinalizations() {
	m.finalizationsTotal.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.runDuration,
		m.auditEntries,
		m.verifyFailures,
		m.finalizationsTotal,
	}
}
