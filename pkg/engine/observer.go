package engine

import (
	"context"
	"time"

	"agentcore/pkg/coordinator"
	"agentcore/pkg/execution"
)

// Observer receives lifecycle events from the engine: execution start and
// finish, step start and finalization, action execution, and retry
// attempts. The engine behaves identically whether or not a real observer
// is attached.
//
// Step callbacks fire once per attempt: a step that is re-queued by the
// retry path reports another started/completed pair for the new attempt.
// Action callbacks fire once per physical execution, so retried actions
// report multiple pairs. Parallel strategies execute actions from several
// goroutines, so implementations must be safe for concurrent use, and
// they must not mutate the records they receive.
type Observer interface {
	// ExecutionStarted fires once, before the first step.
	ExecutionStarted(exec *execution.Execution)

	// StepStarted fires when a step leaves pending. Skipped steps never
	// start; they only report completion.
	StepStarted(executionID string, step *execution.Step)

	// StepCompleted fires when a step reaches a terminal state, including
	// an error state that is subsequently re-queued.
	StepCompleted(executionID string, step *execution.Step)

	// ActionStarted fires before the backend executes an action.
	ActionStarted(executionID string, stepNumber int, action execution.ToolCall)

	// ActionCompleted fires after the backend returns. Infrastructure
	// errors are reported as failed results so observers always see a
	// result per started action.
	ActionCompleted(executionID string, stepNumber int, action execution.ToolCall, result execution.ToolResult, elapsed time.Duration)

	// RetryAttempted fires before each retry sleep, for model calls, tool
	// calls, and step re-queues alike. The label identifies the operation.
	RetryAttempted(label string, attempt int, delay time.Duration, cause error)

	// ExecutionCompleted fires once, after the execution is finalized.
	ExecutionCompleted(exec *execution.Execution)
}

// NopObserver ignores every event. It is the default observer.
type NopObserver struct{}

func (NopObserver) ExecutionStarted(*execution.Execution)         {}
func (NopObserver) StepStarted(string, *execution.Step)           {}
func (NopObserver) StepCompleted(string, *execution.Step)         {}
func (NopObserver) ActionStarted(string, int, execution.ToolCall) {}
func (NopObserver) ActionCompleted(string, int, execution.ToolCall, execution.ToolResult, time.Duration) {
}
func (NopObserver) RetryAttempted(string, int, time.Duration, error) {}
func (NopObserver) ExecutionCompleted(*execution.Execution)          {}

// MultiObserver fans each event out to several observers in registration
// order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver combines observers into one. Nil entries are dropped.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{observers: make([]Observer, 0, len(observers))}
	for _, obs := range observers {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
	return m
}

func (m *MultiObserver) ExecutionStarted(exec *execution.Execution) {
	for _, obs := range m.observers {
		obs.ExecutionStarted(exec)
	}
}

func (m *MultiObserver) StepStarted(executionID string, step *execution.Step) {
	for _, obs := range m.observers {
		obs.StepStarted(executionID, step)
	}
}

func (m *MultiObserver) StepCompleted(executionID string, step *execution.Step) {
	for _, obs := range m.observers {
		obs.StepCompleted(executionID, step)
	}
}

func (m *MultiObserver) ActionStarted(executionID string, stepNumber int, action execution.ToolCall) {
	for _, obs := range m.observers {
		obs.ActionStarted(executionID, stepNumber, action)
	}
}

func (m *MultiObserver) ActionCompleted(executionID string, stepNumber int, action execution.ToolCall, result execution.ToolResult, elapsed time.Duration) {
	for _, obs := range m.observers {
		obs.ActionCompleted(executionID, stepNumber, action, result, elapsed)
	}
}

func (m *MultiObserver) RetryAttempted(label string, attempt int, delay time.Duration, cause error) {
	for _, obs := range m.observers {
		obs.RetryAttempted(label, attempt, delay, cause)
	}
}

func (m *MultiObserver) ExecutionCompleted(exec *execution.Execution) {
	for _, obs := range m.observers {
		obs.ExecutionCompleted(exec)
	}
}

var (
	_ Observer = NopObserver{}
	_ Observer = (*MultiObserver)(nil)
)

// observedBackend decorates the execution backend with action lifecycle
// notifications. The coordinator calls Execute inside the retry policy,
// so each physical attempt reports its own started/completed pair.
type observedBackend struct {
	backend  coordinator.Backend
	observer Observer
	execID   string
	stepNum  int
}

func (b *observedBackend) Execute(ctx context.Context, call execution.ToolCall) (execution.ToolResult, error) {
	b.observer.ActionStarted(b.execID, b.stepNum, call)
	started := time.Now()

	result, err := b.backend.Execute(ctx, call)
	elapsed := time.Since(started)

	reported := result
	if err != nil {
		reported = execution.FailureResult(call.ID, err.Error())
	}
	b.observer.ActionCompleted(b.execID, b.stepNum, call, reported, elapsed)
	return result, err
}
