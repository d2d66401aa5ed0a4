package execution

import (
	"encoding/json"
	"fmt"
)

// ToolCall is one action requested by the model: a tool name, a call id
// unique within its step, and opaque arguments.
type ToolCall struct {
	Parameters map[string]any `json:"parameters"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// NewToolCall builds an action, minting a call id when the model did not
// supply one.
func NewToolCall(id, name string, parameters map[string]any) ToolCall {
	if id == "" {
		id = "call_" + shortID()
	}
	if parameters == nil {
		parameters = make(map[string]any)
	}
	return ToolCall{ID: id, Name: name, Parameters: parameters}
}

// SerializedArgs renders the arguments as canonical JSON. Used by the
// dependency analyzer and the persistence layer.
func (c *ToolCall) SerializedArgs() string {
	if len(c.Parameters) == 0 {
		return "{}"
	}
	data, err := json.Marshal(c.Parameters)
	if err != nil {
		return fmt.Sprintf("%v", c.Parameters)
	}
	return string(data)
}

// ToolResult is the outcome of one action, correlated by call id.
type ToolResult struct {
	CallID       string `json:"call_id"`
	Content      string `json:"content,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Success      bool   `json:"success"`
}

// SuccessResult builds a successful result for a call.
func SuccessResult(callID, content string) ToolResult {
	return ToolResult{CallID: callID, Content: content, Success: true}
}

// FailureResult builds a failed result for a call.
func FailureResult(callID, errorMessage string) ToolResult {
	return ToolResult{CallID: callID, ErrorMessage: errorMessage, Success: false}
}
