package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	execpkg "agentcore/pkg/exec"
)

// WriteFileTool writes files into the workspace through the executor.
// Content travels base64-encoded so arbitrary bytes pass safely through the
// shell.
type WriteFileTool struct {
	executor execpkg.Executor
	workDir  string
}

// NewWriteFileTool creates a new write_file tool.
func NewWriteFileTool(executor execpkg.Executor, workDir string) *WriteFileTool {
	if workDir == "" {
		workDir = DefaultWorkspaceDir
	}
	return &WriteFileTool{executor: executor, workDir: workDir}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WriteFileTool) PromptDocumentation() string {
	return `- **write_file** - Write content to a file in the workspace
  - Parameters:
    - path (string, REQUIRED): relative path to file within workspace
    - content (string, REQUIRED): full content to write
  - Creates parent directories as needed
  - Overwrites the file if it already exists`
}

// Definition returns the tool definition for the model.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Write content to a file in the workspace, creating parent directories as needed. Overwrites existing files.",
		InputSchema: writeFileInputSchema(),
	}
}

func writeFileInputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"path": {
				Type:        "string",
				Description: "Relative path to file within workspace",
			},
			"content": {
				Type:        "string",
				Description: "Full content to write",
			},
		},
		Required: []string{"path", "content"},
	}
}

// Exec executes the tool with the given arguments.
func (t *WriteFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return errorResult(err.Error())
	}
	content, ok := args["content"].(string)
	if !ok {
		return errorResult("content is required and must be a string")
	}

	cleanPath := filepath.Clean(path)
	if strings.HasPrefix(cleanPath, "..") {
		return errorResult("path cannot contain directory traversal (..) attempts")
	}
	fullPath := filepath.Join(t.workDir, cleanPath)

	// Base64 keeps quotes, newlines, and binary content intact through sh -c.
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	script := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s",
		shellQuote(filepath.Dir(fullPath)), shellQuote(encoded), shellQuote(fullPath))

	result, runErr := t.executor.Run(ctx, []string{"sh", "-c", script}, &execpkg.Opts{})
	if runErr != nil {
		return nil, fmt.Errorf("write_file execution failed: %w", runErr)
	}
	if result.ExitCode != 0 {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		return errorResult(fmt.Sprintf("failed to write %s (exit code: %d, output: %s)", path, result.ExitCode, detail))
	}

	return jsonResult(map[string]any{
		"success":       true,
		"path":          path,
		"bytes_written": len(content),
	})
}
