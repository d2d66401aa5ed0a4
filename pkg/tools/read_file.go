package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	execpkg "agentcore/pkg/exec"
)

const (
	defaultReadLines   = 2000 // Default number of lines to read
	maxLineLength      = 2000 // Truncate lines longer than this
	defaultStartOffset = 1    // 1-based line numbering
	defaultReadMaxSize = 1 << 20
)

// ReadFileTool reads file contents from the workspace through the executor,
// so the read observes the same filesystem the other tools mutate.
type ReadFileTool struct {
	executor     execpkg.Executor
	workDir      string
	maxSizeBytes int64 // Safety cap on total output bytes
}

// NewReadFileTool creates a new read_file tool.
func NewReadFileTool(executor execpkg.Executor, workDir string, maxSizeBytes int64) *ReadFileTool {
	if maxSizeBytes <= 0 {
		maxSizeBytes = defaultReadMaxSize
	}
	if workDir == "" {
		workDir = DefaultWorkspaceDir
	}
	return &ReadFileTool{
		executor:     executor,
		workDir:      workDir,
		maxSizeBytes: maxSizeBytes,
	}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReadFileTool) PromptDocumentation() string {
	return `- **read_file** - Read contents of a file from the workspace
  - Parameters:
    - path (string, REQUIRED): relative path to file within workspace
    - offset (integer, optional): line number to start from (1-based, default: 1)
    - limit (integer, optional): number of lines to read (default: 2000)
  - Output uses numbered lines (cat -n format)
  - Lines longer than 2000 characters are truncated
  - For large files, use offset and limit to read specific sections`
}

// Definition returns the tool definition for the model.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read contents of a file from the workspace. Output uses numbered lines. For large files, use offset and limit to read specific sections.",
		InputSchema: readFileInputSchema(),
	}
}

func readFileInputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"path": {
				Type:        "string",
				Description: "Relative path to file within workspace",
			},
			"offset": {
				Type:        "integer",
				Description: "Line number to start reading from (1-based). Defaults to 1.",
			},
			"limit": {
				Type:        "integer",
				Description: "Number of lines to read. Defaults to 2000.",
			},
		},
		Required: []string{"path"},
	}
}

// Exec executes the tool with the given arguments.
func (t *ReadFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return errorResult(err.Error())
	}

	offset := intArgOrDefault(args, "offset", defaultStartOffset)
	limit := intArgOrDefault(args, "limit", defaultReadLines)

	cleanPath := filepath.Clean(path)
	if strings.HasPrefix(cleanPath, "..") {
		return errorResult("path cannot contain directory traversal (..) attempts")
	}
	fullPath := filepath.Join(t.workDir, cleanPath)

	// awk selects [offset, offset+limit-1], prints original line numbers in
	// cat -n format, truncates long lines, and appends a sentinel with the
	// total line count so truncation can be detected.
	endLine := offset + limit - 1
	awkScript := fmt.Sprintf(
		`awk 'NR>=%d && NR<=%d { printf "%%6d\t%%s\n", NR, substr($0, 1, %d) } END { printf "\n__TOTAL_LINES__%%d\n", NR }' %s`,
		offset, endLine, maxLineLength, shellQuote(fullPath),
	)

	result, runErr := t.executor.Run(ctx, []string{"sh", "-c", awkScript}, &execpkg.Opts{})
	if runErr != nil {
		return nil, fmt.Errorf("read_file execution failed: %w", runErr)
	}
	if result.ExitCode != 0 {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		return errorResult(fmt.Sprintf("file not found or not readable: %s (exit code: %d, output: %s)", path, result.ExitCode, detail))
	}

	output := result.Stdout
	totalLines := 0
	truncated := false
	if idx := strings.LastIndex(output, "\n__TOTAL_LINES__"); idx >= 0 {
		countStr := strings.TrimSpace(output[idx+len("\n__TOTAL_LINES__"):])
		output = output[:idx]
		if _, scanErr := fmt.Sscanf(countStr, "%d", &totalLines); scanErr == nil {
			truncated = totalLines > endLine
		}
	}

	if int64(len(output)) > t.maxSizeBytes {
		output = output[:t.maxSizeBytes]
		truncated = true
	}

	return jsonResult(map[string]any{
		"success":     true,
		"content":     output,
		"path":        path,
		"truncated":   truncated,
		"offset":      offset,
		"limit":       limit,
		"total_lines": totalLines,
	})
}
