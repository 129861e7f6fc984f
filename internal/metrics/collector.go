// Package metrics provides the Prometheus collector for the orchestration
// engine. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the engine's Prometheus metrics: workflow run
// outcomes, step executions, retry pressure and state-store persistence.
type Collector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runsActive  prometheus.Gauge

	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepRetries  *prometheus.CounterVec

	storeOpsTotal   *prometheus.CounterVec
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the engine metrics under the given namespace on the
// default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs by terminal status",
		},
		[]string{"workflow_type", "status"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"workflow_type"},
	)

	c.runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_runs_active",
			Help:      "Number of workflow runs currently executing",
		},
	)

	c.stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of step executions by terminal status",
		},
		[]string{"workflow_type", "agent", "status"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"workflow_type", "agent"},
	)

	c.stepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_retries_total",
			Help:      "Total number of step retry attempts by error kind",
		},
		[]string{"agent", "error_kind"},
	)

	c.storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_store_operations_total",
			Help:      "Total number of state store operations",
		},
		[]string{"operation", "status"},
	)

	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "state_store_operation_duration_seconds",
			Help:      "State store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	return c
}

// RunStarted marks a run as active.
func (c *Collector) RunStarted() {
	c.runsActive.Inc()
}

// RunFinished records a terminal run.
func (c *Collector) RunFinished(workflowType, status string, duration time.Duration) {
	c.runsActive.Dec()
	c.runsTotal.WithLabelValues(workflowType, status).Inc()
	c.runDuration.WithLabelValues(workflowType).Observe(duration.Seconds())
}

// StepFinished records a terminal step.
func (c *Collector) StepFinished(workflowType, agent, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(workflowType, agent, status).Inc()
	c.stepDuration.WithLabelValues(workflowType, agent).Observe(duration.Seconds())
}

// StepRetried records one retry decision.
func (c *Collector) StepRetried(agent, errorKind string) {
	c.stepRetries.WithLabelValues(agent, errorKind).Inc()
}

// StoreOp records one state store call.
func (c *Collector) StoreOp(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOpsTotal.WithLabelValues(operation, status).Inc()
	c.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
