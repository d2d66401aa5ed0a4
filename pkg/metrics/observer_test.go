package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"agentcore/pkg/execution"
)

func TestPrometheusObserverLifecycle(t *testing.T) {
	obs := NewPrometheusObserver(prometheus.NewRegistry(), "test", "mock-model")

	exec := execution.NewExecution("count the files")
	obs.ExecutionStarted(exec)

	if got := testutil.ToFloat64(obs.executionsRunning.WithLabelValues("mock-model")); got != 1 {
		t.Errorf("Expected 1 running execution, got %v", got)
	}

	step := execution.NewStep(1)
	if err := step.Start(); err != nil {
		t.Fatalf("Failed to start step: %v", err)
	}
	obs.StepStarted(exec.ID, step)

	call := execution.NewToolCall("call_1", "shell", map[string]any{"cmd": "ls"})
	obs.ActionCompleted(exec.ID, 1, call, execution.SuccessResult("call_1", "ok"), 30*time.Millisecond)
	obs.ActionCompleted(exec.ID, 1, call, execution.FailureResult("call_1", "command exited with status 1"), 5*time.Millisecond)

	obs.RetryAttempted("tool shell", 1, time.Millisecond, errors.New("connection reset"))
	obs.RetryAttempted("step 1", 1, time.Millisecond, errors.New("connection reset"))

	if err := step.Complete(); err != nil {
		t.Fatalf("Failed to complete step: %v", err)
	}
	obs.StepCompleted(exec.ID, step)

	exec.AddUsage(execution.TokenUsage{PromptTokens: 100, CompletionTokens: 25, TotalTokens: 125})
	exec.Finalize(execution.ExecutionCompleted, true, "done")
	obs.ExecutionCompleted(exec)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"running gauge", testutil.ToFloat64(obs.executionsRunning.WithLabelValues("mock-model")), 0},
		{"completed executions", testutil.ToFloat64(obs.executionsTotal.WithLabelValues("mock-model", "completed")), 1},
		{"completed steps", testutil.ToFloat64(obs.stepsTotal.WithLabelValues("mock-model", "completed")), 1},
		{"successful actions", testutil.ToFloat64(obs.actionsTotal.WithLabelValues("mock-model", "shell", "success")), 1},
		{"failed actions", testutil.ToFloat64(obs.actionsTotal.WithLabelValues("mock-model", "shell", "error")), 1},
		{"tool retries", testutil.ToFloat64(obs.retriesTotal.WithLabelValues("mock-model", "tool")), 1},
		{"step retries", testutil.ToFloat64(obs.retriesTotal.WithLabelValues("mock-model", "step")), 1},
		{"prompt tokens", testutil.ToFloat64(obs.tokensTotal.WithLabelValues("mock-model", "prompt")), 100},
		{"completion tokens", testutil.ToFloat64(obs.tokensTotal.WithLabelValues("mock-model", "completion")), 25},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("%s: got %v, want %v", check.name, check.got, check.want)
		}
	}

	if got := testutil.CollectAndCount(obs.stepDuration); got != 1 {
		t.Errorf("Expected 1 step duration series, got %d", got)
	}
	if got := testutil.CollectAndCount(obs.actionDuration); got != 1 {
		t.Errorf("Expected 1 action duration series, got %d", got)
	}
}

func TestObserverRegistersNamespacedCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs := NewPrometheusObserver(registry, "agentcore", "mock-model")

	obs.RetryAttempted("model completion", 1, time.Second, errors.New("rate limited"))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, family := range families {
		if family.GetName() == "agentcore_retries_total" {
			found = true
		}
	}
	if !found {
		t.Error("Expected agentcore_retries_total to be registered")
	}
}

func TestOperationKind(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"tool shell", "tool"},
		{"step 3", "step"},
		{"model completion", "model"},
		{"completion", "completion"},
	}

	for _, tt := range tests {
		if got := operationKind(tt.label); got != tt.want {
			t.Errorf("operationKind(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
