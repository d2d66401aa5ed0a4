package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	execpkg "agentcore/pkg/exec"
)

const defaultListMaxResults = 200

// ListDirTool lists workspace entries through the executor.
type ListDirTool struct {
	executor   execpkg.Executor
	workDir    string
	maxResults int
}

// NewListDirTool creates a new list_dir tool.
func NewListDirTool(executor execpkg.Executor, workDir string, maxResults int) *ListDirTool {
	if maxResults <= 0 {
		maxResults = defaultListMaxResults
	}
	if workDir == "" {
		workDir = DefaultWorkspaceDir
	}
	return &ListDirTool{executor: executor, workDir: workDir, maxResults: maxResults}
}

// Name returns the tool name.
func (t *ListDirTool) Name() string {
	return ToolListDir
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ListDirTool) PromptDocumentation() string {
	return `- **list_dir** - List files under a workspace directory
  - Parameters:
    - path (string, optional): directory relative to workspace root (default: ".")
    - pattern (string, optional): shell glob matched against file names (e.g. "*.go")
    - recursive (boolean, optional): descend into subdirectories (default: false)
  - Returns at most 200 entries; the result reports truncation`
}

// Definition returns the tool definition for the model.
func (t *ListDirTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListDir,
		Description: "List files under a workspace directory, optionally filtered by a name glob and optionally recursive.",
		InputSchema: listDirInputSchema(),
	}
}

func listDirInputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"path": {
				Type:        "string",
				Description: "Directory relative to workspace root. Defaults to the root itself.",
			},
			"pattern": {
				Type:        "string",
				Description: "Shell glob matched against file names, e.g. *.go",
			},
			"recursive": {
				Type:        "boolean",
				Description: "Descend into subdirectories. Defaults to false.",
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ListDirTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	dir := "."
	if p, ok := args["path"].(string); ok && p != "" {
		clean := filepath.Clean(p)
		if strings.HasPrefix(clean, "..") {
			return errorResult("path cannot contain directory traversal (..) attempts")
		}
		dir = clean
	}
	recursive := boolArg(args, "recursive")

	findCmd := fmt.Sprintf("cd %s && find %s", shellQuote(t.workDir), shellQuote(dir))
	if !recursive {
		findCmd += " -maxdepth 1"
	}
	findCmd += " -mindepth 1 -not -path '*/.git/*'"
	if pattern, ok := args["pattern"].(string); ok && pattern != "" {
		findCmd += fmt.Sprintf(" -name %s", shellQuote(pattern))
	}
	// head truncates server-side so huge trees never cross the wire.
	findCmd += fmt.Sprintf(" | sort | head -n %d", t.maxResults)

	result, runErr := t.executor.Run(ctx, []string{"sh", "-c", findCmd}, &execpkg.Opts{})
	if runErr != nil {
		return nil, fmt.Errorf("list_dir execution failed: %w", runErr)
	}
	if result.ExitCode != 0 {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		return errorResult(fmt.Sprintf("failed to list %s (exit code: %d, output: %s)", dir, result.ExitCode, detail))
	}

	output := strings.TrimSpace(result.Stdout)
	files := []string{}
	if output != "" {
		for _, f := range strings.Split(output, "\n") {
			clean := strings.TrimPrefix(f, "./")
			if clean != "" {
				files = append(files, clean)
			}
		}
	}

	return jsonResult(map[string]any{
		"success":   true,
		"files":     files,
		"count":     len(files),
		"path":      dir,
		"truncated": len(files) >= t.maxResults,
	})
}
