package persistence

import (
	"fmt"
	"sync"
	"time"

	"agentcore/pkg/engine"
	"agentcore/pkg/execution"
	"agentcore/pkg/logx"
)

// Recorder persists engine lifecycle events into the execution store.
// Writes are fire-and-forget from the run's point of view: a storage
// failure is logged and never surfaces into the execution.
//
// Action events arrive concurrently under parallel strategies; the
// recorder serializes its position bookkeeping and the single-connection
// pool serializes the writes.
type Recorder struct {
	store  *Store
	logger *logx.Logger
	model  string

	mu  sync.Mutex
	seq map[string]int // "<executionID>/<stepNumber>" -> next result position
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to the given store. The model
// name is stamped onto execution rows; the execution record itself does
// not carry it.
func NewRecorder(store *Store, model string) *Recorder {
	return &Recorder{
		store:  store,
		logger: logx.NewLogger("recorder"),
		model:  model,
		seq:    make(map[string]int),
	}
}

// ExecutionStarted inserts the execution row so step and action rows
// have their foreign-key parent before any of them are written.
func (r *Recorder) ExecutionStarted(exec *execution.Execution) {
	if err := r.store.UpsertExecution(FromExecution(exec, r.model)); err != nil {
		r.logger.Warn("⚠️  Failed to record execution %s start: %v", exec.ID, err)
	}
}

// StepStarted checkpoints the step as soon as it leaves pending.
func (r *Recorder) StepStarted(executionID string, step *execution.Step) {
	if err := r.store.UpsertStep(FromStep(executionID, step)); err != nil {
		r.logger.Warn("⚠️  Failed to record step %d start: %v", step.Number, err)
	}
}

// StepCompleted stores the step's terminal snapshot. A later attempt of
// a re-queued step overwrites the same row, with the retries column
// keeping count.
func (r *Recorder) StepCompleted(executionID string, step *execution.Step) {
	if err := r.store.UpsertStep(FromStep(executionID, step)); err != nil {
		r.logger.Warn("⚠️  Failed to record step %d: %v", step.Number, err)
	}
}

// ActionStarted is a no-op: action rows are written once the result is
// known.
func (r *Recorder) ActionStarted(string, int, execution.ToolCall) {}

// ActionCompleted stores one action outcome. Position is the arrival
// order of results within the step, which matches request order under
// the sequential strategy.
func (r *Recorder) ActionCompleted(executionID string, stepNumber int,
	action execution.ToolCall, result execution.ToolResult, elapsed time.Duration) {
	r.mu.Lock()
	key := seqKey(executionID, stepNumber)
	position := r.seq[key]
	r.seq[key]++
	r.mu.Unlock()

	row := FromActionResult(executionID, stepNumber, position, action, result, elapsed)
	if err := r.store.UpsertActionResult(row); err != nil {
		r.logger.Warn("⚠️  Failed to record action %s: %v", action.ID, err)
	}
}

// RetryAttempted has no table of its own; retries surface through the
// step row's retry counter and the metrics observer.
func (r *Recorder) RetryAttempted(label string, attempt int, delay time.Duration, cause error) {
	r.logger.Debug("Retry %d for %s in %s: %v", attempt, label, delay, cause)
}

// ExecutionCompleted stores the final execution row and drops the
// position bookkeeping for the run.
func (r *Recorder) ExecutionCompleted(exec *execution.Execution) {
	if err := r.store.UpsertExecution(FromExecution(exec, r.model)); err != nil {
		r.logger.Warn("⚠️  Failed to record execution %s: %v", exec.ID, err)
	}

	r.mu.Lock()
	prefix := exec.ID + "/"
	for key := range r.seq {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.seq, key)
		}
	}
	r.mu.Unlock()
}

func seqKey(executionID string, stepNumber int) string {
	return fmt.Sprintf("%s/%d", executionID, stepNumber)
}
