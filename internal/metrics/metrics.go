package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's prometheus collectors. A nil *Metrics is a
// valid no-op receiver so tests and tools can run without a registry.
type Metrics struct {
	startedTotal     *prometheus.CounterVec
	resumedTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	suspendedTotal   *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		startedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_workflows_started_total",
			Help: "Workflow instances started, by workflow type.",
		}, []string{"workflow_type"}),
		resumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_workflows_resumed_total",
			Help: "Resume calls accepted, by workflow type.",
		}, []string{"workflow_type"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_transitions_total",
			Help: "Committed state transitions, by workflow type and target node.",
		}, []string{"workflow_type", "to_node"}),
		suspendedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_suspensions_total",
			Help: "Run passes that ended suspended at an interrupt node.",
		}, []string{"workflow_type", "node"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procflow_run_pass_duration_seconds",
			Help:    "Duration of a single run pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"workflow_type"}),
	}
	reg.MustRegister(m.startedTotal, m.resumedTotal, m.transitionsTotal, m.suspendedTotal, m.runDuration)
	return m
}

func (m *Metrics) WorkflowStarted(workflowType string) {
	if m == nil {
		return
	}
	m.startedTotal.WithLabelValues(workflowType).Inc()
}

func (m *Metrics) WorkflowResumed(workflowType string) {
	if m == nil {
		return
	}
	m.resumedTotal.WithLabelValues(workflowType).Inc()
}

func (m *Metrics) TransitionCommitted(workflowType, toNode string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(workflowType, toNode).Inc()
}

func (m *Metrics) Suspended(workflowType, node string) {
	if m == nil {
		return
	}
	m.suspendedTotal.WithLabelValues(workflowType, node).Inc()
}

func (m *Metrics) ObserveRunPass(workflowType string, start time.Time) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(workflowType).Observe(time.Since(start).Seconds())
}
