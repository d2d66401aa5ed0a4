package tools

// Tool name constants - use these instead of magic strings to prevent typos
// and enable compile-time checking.
const (
	// Development tools.
	ToolShell     = "shell"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolListDir   = "list_dir"

	// Completion marker: calling this tool signals the task is finished.
	ToolTaskDone = "task_done"
)

// DefaultWorkspaceDir is where tools operate when no workdir is configured.
const DefaultWorkspaceDir = "/workspace"

//nolint:gochecknoglobals // Shared tool sets need to be globally accessible
var (
	// DefaultTools is the allow-list used when a run does not configure one.
	DefaultTools = []string{
		ToolShell,
		ToolReadFile,
		ToolWriteFile,
		ToolListDir,
		ToolTaskDone,
	}

	// DefaultSandboxTools lists the tools routed through the sandboxed
	// executor by default. Matching is by normalized name, so entries here
	// may be written in any case with or without underscores.
	DefaultSandboxTools = []string{
		ToolShell,
		ToolReadFile,
		ToolWriteFile,
		ToolListDir,
	}
)
