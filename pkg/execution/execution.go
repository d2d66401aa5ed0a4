// Package execution defines the persistent record of an agent run: the
// Execution, its Steps, the tool calls and results attached to each step,
// and the state vocabulary for both.
package execution

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentcore/pkg/agenterrors"
)

// ExecutionState represents the lifecycle state of an execution.
type ExecutionState string

const (
	ExecutionRunning   ExecutionState = "running"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionError     ExecutionState = "error"
	ExecutionCancelled ExecutionState = "cancelled"
)

// ValidExecutionStates returns all valid execution states.
func ValidExecutionStates() []ExecutionState {
	return []ExecutionState{ExecutionRunning, ExecutionCompleted, ExecutionError, ExecutionCancelled}
}

// IsTerminal reports whether the execution has finished.
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionError || s == ExecutionCancelled
}

// TokenUsage accumulates model token consumption across an execution.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ErrorRecord is the serializable error record attached to steps and
// executions. Recoverable and Retryable are independent flags.
type ErrorRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Retryable   bool      `json:"retryable"`
}

// NewErrorRecord converts a classified error into its execution record.
func NewErrorRecord(err *agenterrors.Error) *ErrorRecord {
	if err == nil {
		return nil
	}
	msg := err.Message
	if msg == "" {
		msg = err.Error()
	}
	return &ErrorRecord{
		Timestamp:   err.Timestamp,
		Kind:        err.Kind.String(),
		Message:     msg,
		Recoverable: err.Recoverable,
		Retryable:   err.IsRetryable(),
	}
}

// Execution is the complete record of one agent run. The caller gets one
// back on every run, success or not.
type Execution struct {
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	State       ExecutionState  `json:"state"`
	FinalResult string          `json:"final_result,omitempty"`
	Steps       []*Step         `json:"steps"`
	Error       *ErrorRecord    `json:"error,omitempty"`
	Usage       TokenUsage      `json:"usage"`
	Success     bool            `json:"success"`
}

// NewExecution creates a running execution for a task.
func NewExecution(task string) *Execution {
	return &Execution{
		ID:        GenerateExecutionID(),
		Task:      task,
		State:     ExecutionRunning,
		StartedAt: time.Now().UTC(),
		Steps:     make([]*Step, 0),
	}
}

// NextStepNumber returns the number the next appended step must carry.
func (e *Execution) NextStepNumber() int {
	return len(e.Steps) + 1
}

// CurrentStep returns the most recently appended step, or nil.
func (e *Execution) CurrentStep() *Step {
	if len(e.Steps) == 0 {
		return nil
	}
	return e.Steps[len(e.Steps)-1]
}

// AppendStep attaches a step, enforcing that step numbers stay contiguous
// from 1 and that at most one step is non-terminal at a time.
func (e *Execution) AppendStep(step *Step) error {
	if step == nil {
		return fmt.Errorf("cannot append nil step")
	}
	if want := e.NextStepNumber(); step.Number != want {
		return fmt.Errorf("step number %d breaks contiguity, want %d", step.Number, want)
	}
	if cur := e.CurrentStep(); cur != nil && !cur.State.IsTerminal() {
		return fmt.Errorf("step %d is still active", cur.Number)
	}
	e.Steps = append(e.Steps, step)
	return nil
}

// AddUsage accumulates token usage onto the execution.
func (e *Execution) AddUsage(usage TokenUsage) {
	e.Usage.Add(usage)
}

// Finalize closes the execution. Repeated calls keep the first outcome.
func (e *Execution) Finalize(state ExecutionState, success bool, finalResult string) {
	if e.EndedAt != nil {
		return
	}
	now := time.Now().UTC()
	e.EndedAt = &now
	e.State = state
	e.Success = success
	e.FinalResult = finalResult
}

// Fail closes the execution with an error record.
func (e *Execution) Fail(err *agenterrors.Error, finalResult string) {
	if e.Error == nil {
		e.Error = NewErrorRecord(err)
	}
	state := ExecutionError
	if err != nil && err.Kind == agenterrors.KindUserCancelled {
		state = ExecutionCancelled
	}
	e.Finalize(state, false, finalResult)
}

// Duration returns elapsed wall-clock time, live or final.
func (e *Execution) Duration() time.Duration {
	if e.EndedAt != nil {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return time.Since(e.StartedAt)
}

// GenerateExecutionID generates a new UUID for an execution.
func GenerateExecutionID() string {
	return uuid.New().String()
}

// GenerateShortID generates an 8-character hex ID (like git short hashes)
// for steps and synthetic call ids.
func GenerateShortID() (string, error) {
	bytes := make([]byte, 4) // 4 bytes = 8 hex characters
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("%x", bytes), nil
}

// shortID returns a short hex ID, falling back to a UUID prefix if the
// system entropy source fails.
func shortID() string {
	id, err := GenerateShortID()
	if err != nil {
		return uuid.New().String()[:8]
	}
	return id
}
