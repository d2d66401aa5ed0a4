package persistence

import (
	"time"

	"agentcore/pkg/execution"
)

// ExecutionRow is the stored form of one agent run.
//
//nolint:govet // struct alignment optimization not critical for this type
type ExecutionRow struct {
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ID               string     `json:"id"`
	Task             string     `json:"task"`
	Model            string     `json:"model,omitempty"`
	State            string     `json:"state"`
	FinalResult      string     `json:"final_result,omitempty"`
	ErrorKind        string     `json:"error_kind,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	PromptTokens     int64      `json:"prompt_tokens"`
	CompletionTokens int64      `json:"completion_tokens"`
	TotalTokens      int64      `json:"total_tokens"`
	Success          bool       `json:"success"`
}

// StepRow is the stored form of one step. A re-queued step overwrites
// its row; the retries column keeps the attempt count.
//
//nolint:govet // struct alignment optimization not critical for this type
type StepRow struct {
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ExecutionID  string     `json:"execution_id"`
	ID           string     `json:"id"`
	State        string     `json:"state"`
	Response     string     `json:"response,omitempty"`
	Reflection   string     `json:"reflection,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Number       int        `json:"number"`
	Retries      int        `json:"retries"`
}

// ActionResultRow is the stored form of one executed action.
//
//nolint:govet // struct alignment optimization not critical for this type
type ActionResultRow struct {
	CreatedAt    time.Time `json:"created_at"`
	ExecutionID  string    `json:"execution_id"`
	CallID       string    `json:"call_id"`
	Tool         string    `json:"tool"`
	Args         string    `json:"args,omitempty"`
	Content      string    `json:"content,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	StepNumber   int       `json:"step_number"`
	Position     int       `json:"position"`
	Success      bool      `json:"success"`
}

// FromExecution converts an execution record into its stored form. The
// model name is supplied by the caller; the record itself does not carry
// it.
func FromExecution(exec *execution.Execution, model string) *ExecutionRow {
	row := &ExecutionRow{
		StartedAt:        exec.StartedAt,
		EndedAt:          exec.EndedAt,
		ID:               exec.ID,
		Task:             exec.Task,
		Model:            model,
		State:            string(exec.State),
		FinalResult:      exec.FinalResult,
		PromptTokens:     exec.Usage.PromptTokens,
		CompletionTokens: exec.Usage.CompletionTokens,
		TotalTokens:      exec.Usage.TotalTokens,
		Success:          exec.Success,
	}
	if exec.Error != nil {
		row.ErrorKind = exec.Error.Kind
		row.ErrorMessage = exec.Error.Message
	}
	return row
}

// FromStep converts a step record into its stored form.
func FromStep(executionID string, step *execution.Step) *StepRow {
	row := &StepRow{
		StartedAt:   step.StartedAt,
		EndedAt:     step.EndedAt,
		ExecutionID: executionID,
		ID:          step.ID,
		State:       string(step.State),
		Response:    step.Response,
		Reflection:  step.Reflection,
		Number:      step.Number,
		Retries:     step.Retries,
	}
	if step.Error != nil {
		row.ErrorKind = step.Error.Kind
		row.ErrorMessage = step.Error.Message
	}
	return row
}

// FromActionResult converts one executed action and its result into the
// stored form. Position is the action's index in the step's request
// order.
func FromActionResult(executionID string, stepNumber, position int,
	action execution.ToolCall, result execution.ToolResult, elapsed time.Duration) *ActionResultRow {
	return &ActionResultRow{
		CreatedAt:    time.Now().UTC(),
		ExecutionID:  executionID,
		CallID:       action.ID,
		Tool:         action.Name,
		Args:         action.SerializedArgs(),
		Content:      result.Content,
		ErrorMessage: result.ErrorMessage,
		DurationMS:   elapsed.Milliseconds(),
		StepNumber:   stepNumber,
		Position:     position,
		Success:      result.Success,
	}
}

// ExecutionFilter represents criteria for querying executions.
type ExecutionFilter struct {
	State   *string `json:"state,omitempty"`
	Success *bool   `json:"success,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

// StoreSummary represents aggregated metrics across stored executions.
type StoreSummary struct {
	LastCompleted       *time.Time `json:"last_completed,omitempty"`
	TotalExecutions     int        `json:"total_executions"`
	CompletedExecutions int        `json:"completed_executions"`
	TotalSteps          int        `json:"total_steps"`
	TotalTokens         int64      `json:"total_tokens"`
}
