package execution

import (
	"fmt"
	"time"

	"agentcore/pkg/agenterrors"
)

// StepState represents the lifecycle state of a single step.
type StepState string

const (
	StepPending     StepState = "pending"
	StepThinking    StepState = "thinking"
	StepCallingTool StepState = "calling_tool"
	StepReflecting  StepState = "reflecting"
	StepCompleted   StepState = "completed"
	StepError       StepState = "error"
	StepSkipped     StepState = "skipped"
)

// IsTerminal reports whether the step has finished. A step in error may
// still be re-queued to pending by the retry path.
func (s StepState) IsTerminal() bool {
	return s == StepCompleted || s == StepError || s == StepSkipped
}

// stepTransitions is the allowed transition table. Error back to pending
// is the retry re-queue.
var stepTransitions = map[StepState][]StepState{
	StepPending:     {StepThinking, StepSkipped},
	StepThinking:    {StepCallingTool, StepCompleted, StepError},
	StepCallingTool: {StepReflecting, StepCompleted, StepError},
	StepReflecting:  {StepCompleted, StepError},
	StepError:       {StepPending},
}

// CanTransition reports whether moving from one step state to another is
// allowed.
func CanTransition(from, to StepState) bool {
	for _, allowed := range stepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Step is the record of one loop iteration: one model exchange plus the
// tool calls it requested. Sub-steps hold snapshots of failed attempts
// when the step is re-queued by the retry path.
type Step struct {
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	ID         string          `json:"id"`
	State      StepState       `json:"state"`
	Response   string          `json:"response,omitempty"`
	Reflection string          `json:"reflection,omitempty"`
	Actions    []ToolCall      `json:"actions,omitempty"`
	Results    []ToolResult    `json:"results,omitempty"`
	SubSteps   []*Step         `json:"sub_steps,omitempty"`
	Error      *ErrorRecord    `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration_ns"`
	Number     int             `json:"number"`
	Retries    int             `json:"retries"`
}

// NewStep creates a pending step with the given 1-based number.
func NewStep(number int) *Step {
	return &Step{
		ID:     shortID(),
		Number: number,
		State:  StepPending,
	}
}

// Transition moves the step to a new state, validating against the
// transition table.
func (s *Step) Transition(to StepState) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("invalid step transition %s -> %s", s.State, to)
	}
	s.State = to
	return nil
}

// Start moves the step from pending to thinking and stamps the start time.
func (s *Step) Start() error {
	if err := s.Transition(StepThinking); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.StartedAt = &now
	return nil
}

// Skip marks a pending step as skipped and finalizes it.
func (s *Step) Skip() error {
	if err := s.Transition(StepSkipped); err != nil {
		return err
	}
	now := time.Now().UTC()
	if s.StartedAt == nil {
		s.StartedAt = &now
	}
	s.finalize(now)
	return nil
}

// Complete moves the step to completed and finalizes it.
func (s *Step) Complete() error {
	if err := s.Transition(StepCompleted); err != nil {
		return err
	}
	s.finalize(time.Now().UTC())
	return nil
}

// Fail moves the step to error from any non-terminal state, attaches the
// error record, and finalizes. Steps are finalized on every path.
func (s *Step) Fail(err *agenterrors.Error) {
	if s.State.IsTerminal() {
		return
	}
	s.State = StepError
	s.Error = NewErrorRecord(err)
	now := time.Now().UTC()
	if s.StartedAt == nil {
		s.StartedAt = &now
	}
	s.finalize(now)
}

func (s *Step) finalize(now time.Time) {
	if s.EndedAt != nil {
		return
	}
	s.EndedAt = &now
	if s.StartedAt != nil {
		s.Duration = now.Sub(*s.StartedAt)
	}
}

// SetResults attaches coordinator results, enforcing that every result's
// call id matches exactly one action of this step.
func (s *Step) SetResults(results []ToolResult) error {
	seen := make(map[string]int, len(s.Actions))
	for i := range s.Actions {
		seen[s.Actions[i].ID]++
	}
	for i := range results {
		switch seen[results[i].CallID] {
		case 0:
			return fmt.Errorf("result call id %s matches no action", results[i].CallID)
		case 1:
			// Exactly one match.
		default:
			return fmt.Errorf("result call id %s matches %d actions", results[i].CallID, seen[results[i].CallID])
		}
	}
	s.Results = results
	return nil
}

// FailedResults returns the subset of results that reported failure.
func (s *Step) FailedResults() []ToolResult {
	var failed []ToolResult
	for i := range s.Results {
		if !s.Results[i].Success {
			failed = append(failed, s.Results[i])
		}
	}
	return failed
}

// Requeue snapshots the failed attempt into a sub-step and resets the
// step to pending with the retry counter incremented. The step number is
// preserved so numbering stays contiguous.
func (s *Step) Requeue() error {
	if s.State != StepError {
		return fmt.Errorf("cannot requeue step in state %s", s.State)
	}
	attempt := &Step{
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		ID:         shortID(),
		State:      StepError,
		Response:   s.Response,
		Reflection: s.Reflection,
		Actions:    s.Actions,
		Results:    s.Results,
		Error:      s.Error,
		Duration:   s.Duration,
		Number:     len(s.SubSteps) + 1,
		Retries:    s.Retries,
	}
	s.SubSteps = append(s.SubSteps, attempt)

	if err := s.Transition(StepPending); err != nil {
		return err
	}
	s.Retries++
	s.StartedAt = nil
	s.EndedAt = nil
	s.Duration = 0
	s.Response = ""
	s.Reflection = ""
	s.Actions = nil
	s.Results = nil
	s.Error = nil
	return nil
}
