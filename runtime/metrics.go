package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics receives runtime execution observations. A nil Metrics is never
// passed around; NewNoopMetrics provides the zero-cost default.
type Metrics interface {
	SetWorkflowsRunning(delta int)
	RecordSideEffect(workflowName, stepKey, outcome string)
	RecordStepLatency(workflowName, stepKey string, latency time.Duration)
	RecordRetry(workflowName, reason string)
}

// noopMetrics discards every observation.
type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that does nothing, for callers that
// don't want Prometheus wired in (e.g. unit tests).
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) SetWorkflowsRunning(int)                         {}
func (noopMetrics) RecordSideEffect(string, string, string)         {}
func (noopMetrics) RecordStepLatency(string, string, time.Duration) {}
func (noopMetrics) RecordRetry(string, string)                      {}

// PrometheusMetrics exposes the durable-runtime metrics surface described
// in SPEC_FULL.md §4.2: durableflow_workflows_running, durableflow_side_effects_total,
// durableflow_step_latency_ms, durableflow_retries_total.
//
// Thread-safe: all updates go through the prometheus client's own atomic
// machinery, not an additional lock.
type PrometheusMetrics struct {
	workflowsRunning prometheus.Gauge
	sideEffects      *prometheus.CounterVec
	stepLatency      *prometheus.HistogramVec
	retries          *prometheus.CounterVec
}

// NewPrometheusMetrics registers the durableflow_* metric family with
// registry. Pass prometheus.DefaultRegisterer for the global registry, or a
// fresh prometheus.NewRegistry() for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		workflowsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "durableflow",
			Name:      "workflows_running",
			Help:      "Current number of workflows being driven by this node",
		}),
		sideEffects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "durableflow",
			Name:      "side_effects_total",
			Help:      "Side-effect thunk invocations, partitioned by outcome (executed, replayed)",
		}, []string{"workflow_name", "step_key", "outcome"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "durableflow",
			Name:      "step_latency_ms",
			Help:      "Side-effect thunk execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"workflow_name", "step_key"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "durableflow",
			Name:      "retries_total",
			Help:      "Journal append retry attempts, partitioned by reason",
		}, []string{"workflow_name", "reason"}),
	}
}

// SetWorkflowsRunning adjusts the workflows_running gauge by delta (+1 on
// drive start, -1 on drive end).
func (pm *PrometheusMetrics) SetWorkflowsRunning(delta int) {
	if delta > 0 {
		pm.workflowsRunning.Add(float64(delta))
	} else {
		pm.workflowsRunning.Sub(float64(-delta))
	}
}

// RecordSideEffect increments side_effects_total for the given outcome
// ("executed" or "replayed").
func (pm *PrometheusMetrics) RecordSideEffect(workflowName, stepKey, outcome string) {
	pm.sideEffects.WithLabelValues(workflowName, stepKey, outcome).Inc()
}

// RecordStepLatency observes the duration of a side-effect thunk's
// execution (not recorded for replayed steps, which do not re-run the
// thunk).
func (pm *PrometheusMetrics) RecordStepLatency(workflowName, stepKey string, latency time.Duration) {
	pm.stepLatency.WithLabelValues(workflowName, stepKey).Observe(float64(latency.Milliseconds()))
}

// RecordRetry increments retries_total for a journal append retry.
func (pm *PrometheusMetrics) RecordRetry(workflowName, reason string) {
	pm.retries.WithLabelValues(workflowName, reason).Inc()
}
