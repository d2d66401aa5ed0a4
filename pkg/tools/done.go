package tools

import (
	"context"
)

// TaskDoneTool is the completion marker: the model calls it to declare the
// task finished. The step machine detects the call on the model response and
// runs its own completion check, so Exec only confirms receipt.
type TaskDoneTool struct{}

// NewTaskDoneTool creates the completion-marker tool.
func NewTaskDoneTool() *TaskDoneTool {
	return &TaskDoneTool{}
}

// Name returns the tool identifier.
func (d *TaskDoneTool) Name() string {
	return ToolTaskDone
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (d *TaskDoneTool) PromptDocumentation() string {
	return `- **task_done** - Signal that the task is complete
  - Parameter: summary (required)
  - summary: Description of what was accomplished and why the task is done
  - Call this only when the task is fully finished; the result is verified
  - Do not request other tools in the same turn as task_done`
}

// Definition returns the tool definition for the model.
func (d *TaskDoneTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolTaskDone,
		Description: "Signal that the task is complete. Call only when all work is finished.",
		InputSchema: taskDoneInputSchema(),
	}
}

func taskDoneInputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"summary": {
				Type:        "string",
				Description: "Description of what was accomplished and why the task is done",
			},
		},
		Required: []string{"summary"},
	}
}

// Exec acknowledges the completion signal.
func (d *TaskDoneTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	summary, err := stringArg(args, "summary")
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(map[string]any{
		"success": true,
		"summary": summary,
	})
}
