// Package tools provides the sealed tool registry, the per-run provider that
// routes tool calls to a local or sandboxed executor, and the built-in tools.
package tools

import "context"

// Tool is implemented by every callable tool.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Definition returns the schema advertised to the model.
	Definition() ToolDefinition
	// PromptDocumentation returns formatted tool documentation for prompts.
	PromptDocumentation() string
	// Exec executes the tool with the given arguments.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// ExecResult carries a tool's output back to the model. Failed marks a
// domain-level failure (command exited non-zero, file unreadable, bad
// arguments): the content still reaches the model, but the result is
// reported as failed so the step machine can react to it.
type ExecResult struct {
	Content string
	Error   string // short failure reason when Failed is set
	Failed  bool
}

// ToolDefinition describes a tool in the schema shared by all model providers.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is the JSON-schema fragment describing a tool's parameters.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single parameter in an InputSchema.
type Property struct {
	Properties  map[string]*Property `json:"properties,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
}
