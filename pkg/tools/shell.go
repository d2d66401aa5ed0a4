package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	execpkg "agentcore/pkg/exec"
)

const (
	defaultShellTimeout = 120 * time.Second
	maxShellTimeout     = 600 * time.Second
)

// ShellTool executes shell commands through the bound executor.
type ShellTool struct {
	executor        execpkg.Executor
	workDir         string
	limits          *execpkg.ResourceLimits
	readOnly        bool
	networkDisabled bool
}

// NewShellTool creates a shell tool with default workspace settings.
func NewShellTool(executor execpkg.Executor) *ShellTool {
	return NewShellToolWithConfig(executor, "", false, false, nil)
}

// NewShellToolWithConfig creates a shell tool with explicit workspace policy.
func NewShellToolWithConfig(executor execpkg.Executor, workDir string, readOnly, networkDisabled bool, limits *execpkg.ResourceLimits) *ShellTool {
	if workDir == "" {
		workDir = DefaultWorkspaceDir
	}
	return &ShellTool{
		executor:        executor,
		workDir:         workDir,
		limits:          limits,
		readOnly:        readOnly,
		networkDisabled: networkDisabled,
	}
}

// Name returns the tool name.
func (t *ShellTool) Name() string {
	return ToolShell
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ShellTool) PromptDocumentation() string {
	return `- **shell** - Execute a shell command in the workspace
  - Parameters:
    - cmd (string, REQUIRED): command to run with sh -c
    - cwd (string, optional): working directory relative to the workspace root
    - timeout_seconds (integer, optional): wall-clock limit (default 120, max 600)
  - Returns stdout, stderr, and the exit code
  - A non-zero exit code is reported in the result, not raised as an error`
}

// Definition returns the tool definition for the model.
func (t *ShellTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolShell,
		Description: "Execute a shell command in the workspace. Returns stdout, stderr, and the exit code.",
		InputSchema: shellInputSchema(),
	}
}

func shellInputSchema() InputSchema {
	return InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"cmd": {
				Type:        "string",
				Description: "Command to run with sh -c",
			},
			"cwd": {
				Type:        "string",
				Description: "Working directory relative to the workspace root",
			},
			"timeout_seconds": {
				Type:        "integer",
				Description: "Wall-clock limit in seconds (default 120, max 600)",
			},
		},
		Required: []string{"cmd"},
	}
}

// Exec runs the command and reports its outcome. Command failure (non-zero
// exit) is part of the result; only executor faults surface as errors.
func (t *ShellTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	cmdStr, err := stringArg(args, "cmd")
	if err != nil {
		return errorResult(err.Error())
	}

	workDir := t.workDir
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		clean := filepath.Clean(cwd)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return errorResult("cwd must stay within the workspace")
		}
		workDir = filepath.Join(t.workDir, clean)
	}

	timeout := time.Duration(intArgOrDefault(args, "timeout_seconds", int(defaultShellTimeout/time.Second))) * time.Second
	if timeout > maxShellTimeout {
		timeout = maxShellTimeout
	}

	opts := &execpkg.Opts{
		WorkDir:         workDir,
		Timeout:         timeout,
		ReadOnly:        t.readOnly,
		NetworkDisabled: t.networkDisabled,
		ResourceLimits:  t.limits,
	}

	result, runErr := t.executor.Run(ctx, []string{"sh", "-c", cmdStr}, opts)
	if runErr != nil {
		return nil, fmt.Errorf("shell execution failed: %w", runErr)
	}

	res, jsonErr := jsonResult(map[string]any{
		"success":   result.ExitCode == 0,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"exit_code": result.ExitCode,
		"cwd":       workDir,
	})
	if jsonErr != nil {
		return nil, jsonErr
	}
	if result.ExitCode != 0 {
		res.Failed = true
		res.Error = fmt.Sprintf("command exited with code %d", result.ExitCode)
	}
	return res, nil
}
