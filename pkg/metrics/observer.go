// Package metrics exposes execution telemetry as Prometheus metrics: an
// engine observer that fills counters and histograms, an HTTP endpoint
// serving them, and a query service reading aggregates back over PromQL.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentcore/pkg/engine"
	"agentcore/pkg/execution"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// PrometheusObserver implements the engine Observer interface using
// Prometheus metrics. One instance serves one configured model; the
// collectors are registered on the registry passed at construction, so
// callers own the registration lifetime.
type PrometheusObserver struct {
	model string

	executionsRunning *prometheus.GaugeVec
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	stepsTotal        *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	actionsTotal      *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	tokensTotal       *prometheus.CounterVec
}

var _ engine.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates a Prometheus-based observer, registering
// its collectors on reg under the given namespace. Passing a nil
// registerer leaves the collectors unregistered, which is useful in
// tests.
func NewPrometheusObserver(reg prometheus.Registerer, namespace, model string) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		model: model,
		executionsRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executions_running",
				Help:      "Number of executions currently in flight",
			},
			[]string{"model"},
		),
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of finished executions by final state",
			},
			[]string{"model", "state"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock duration of finished executions in seconds",
				// Executions span seconds to several minutes.
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"model"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of finalized steps by terminal state",
			},
			[]string{"model", "state"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of finalized steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"model"},
		),
		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of executed actions by tool and status",
			},
			[]string{"model", "tool", "status"},
		),
		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of executed actions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "tool"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retry attempts by operation kind",
			},
			[]string{"model", "operation"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total number of tokens consumed by executions",
			},
			[]string{"model", "type"},
		),
	}
}

// ExecutionStarted marks an execution as in flight.
func (p *PrometheusObserver) ExecutionStarted(*execution.Execution) {
	p.executionsRunning.WithLabelValues(p.model).Inc()
}

// StepStarted is a no-op: step metrics are recorded on finalization.
func (p *PrometheusObserver) StepStarted(string, *execution.Step) {}

// StepCompleted records the step's terminal state and duration. A
// re-queued step reports once per attempt.
func (p *PrometheusObserver) StepCompleted(_ string, step *execution.Step) {
	p.stepsTotal.WithLabelValues(p.model, string(step.State)).Inc()
	p.stepDuration.WithLabelValues(p.model).Observe(step.Duration.Seconds())
}

// ActionStarted is a no-op: action metrics are recorded once the result
// is known.
func (p *PrometheusObserver) ActionStarted(string, int, execution.ToolCall) {}

// ActionCompleted records one physical action execution. Retried actions
// report once per attempt.
func (p *PrometheusObserver) ActionCompleted(_ string, _ int, action execution.ToolCall, result execution.ToolResult, elapsed time.Duration) {
	status := statusSuccess
	if !result.Success {
		status = statusError
	}
	p.actionsTotal.WithLabelValues(p.model, action.Name, status).Inc()
	p.actionDuration.WithLabelValues(p.model, action.Name).Observe(elapsed.Seconds())
}

// RetryAttempted counts the retry under the operation kind derived from
// its label.
func (p *PrometheusObserver) RetryAttempted(label string, _ int, _ time.Duration, _ error) {
	p.retriesTotal.WithLabelValues(p.model, operationKind(label)).Inc()
}

// ExecutionCompleted records the final state, duration, and token totals
// of a finished execution.
func (p *PrometheusObserver) ExecutionCompleted(exec *execution.Execution) {
	p.executionsRunning.WithLabelValues(p.model).Dec()
	p.executionsTotal.WithLabelValues(p.model, string(exec.State)).Inc()
	p.executionDuration.WithLabelValues(p.model).Observe(exec.Duration().Seconds())
	p.tokensTotal.WithLabelValues(p.model, "prompt").Add(float64(exec.Usage.PromptTokens))
	p.tokensTotal.WithLabelValues(p.model, "completion").Add(float64(exec.Usage.CompletionTokens))
}

// operationKind reduces a retry label like "tool shell" or "step 3" to
// its leading word so label cardinality stays bounded.
func operationKind(label string) string {
	if i := strings.IndexByte(label, ' '); i > 0 {
		return label[:i]
	}
	return label
}
