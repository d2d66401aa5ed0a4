package tools

import (
	"fmt"
	"sort"
	"sync"

	execpkg "agentcore/pkg/exec"
)

// AgentContext carries the dependencies injected into tool factories. One
// context describes one executor binding; the provider holds a local and a
// sandboxed context and picks per tool name.
type AgentContext struct {
	Executor        execpkg.Executor
	WorkDir         string
	ReadOnly        bool
	NetworkDisabled bool
}

// ToolFactory creates a tool instance bound to an agent context.
type ToolFactory func(ctx AgentContext) (Tool, error)

// ToolMeta describes a registered tool without instantiating it.
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
}

// toolDescriptor pairs a factory with its metadata.
type toolDescriptor struct {
	factory ToolFactory
	meta    ToolMeta
}

// immutableRegistry is written during package init and sealed before first
// use. After Seal it is read-only for the lifetime of the process; providers
// never mutate it.
type immutableRegistry struct {
	tools  map[string]toolDescriptor
	mu     sync.RWMutex
	sealed bool
}

//nolint:gochecknoglobals // Single process-wide registry, sealed after init
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry. Registration is an
// init-time action: it panics on a duplicate name or a sealed registry,
// because either is a programming error rather than a runtime condition.
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry is sealed, cannot register %q", name))
	}
	if name == "" {
		panic("tool name cannot be empty")
	}
	if factory == nil {
		panic(fmt.Sprintf("tool %q has nil factory", name))
	}
	if _, exists := globalRegistry.tools[name]; exists {
		panic(fmt.Sprintf("tool %q already registered", name))
	}

	m := ToolMeta{Name: name}
	if meta != nil {
		m = *meta
		m.Name = name
	}
	globalRegistry.tools[name] = toolDescriptor{factory: factory, meta: m}
}

// Seal freezes the registry. NewProvider calls this; explicit calls are
// allowed and idempotent.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for every registered tool, sorted by name.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// lookup returns the descriptor for name, or false if unregistered.
func lookup(name string) (toolDescriptor, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	desc, ok := globalRegistry.tools[name]
	return desc, ok
}

// TOOL FACTORY FUNCTIONS

// createShellTool creates a shell tool instance with the provided agent context.
func createShellTool(ctx AgentContext) (Tool, error) {
	if ctx.Executor == nil {
		return nil, fmt.Errorf("shell tool requires an executor")
	}
	return NewShellToolWithConfig(ctx.Executor, ctx.WorkDir, ctx.ReadOnly, ctx.NetworkDisabled, nil), nil
}

// createReadFileTool creates a read_file tool instance.
func createReadFileTool(ctx AgentContext) (Tool, error) {
	if ctx.Executor == nil {
		return nil, fmt.Errorf("read_file tool requires an executor")
	}
	return NewReadFileTool(ctx.Executor, ctx.WorkDir, 0), nil
}

// createWriteFileTool creates a write_file tool instance.
func createWriteFileTool(ctx AgentContext) (Tool, error) {
	if ctx.Executor == nil {
		return nil, fmt.Errorf("write_file tool requires an executor")
	}
	if ctx.ReadOnly {
		return nil, fmt.Errorf("write_file tool is unavailable in a read-only workspace")
	}
	return NewWriteFileTool(ctx.Executor, ctx.WorkDir), nil
}

// createListDirTool creates a list_dir tool instance.
func createListDirTool(ctx AgentContext) (Tool, error) {
	if ctx.Executor == nil {
		return nil, fmt.Errorf("list_dir tool requires an executor")
	}
	return NewListDirTool(ctx.Executor, ctx.WorkDir, 0), nil
}

// createTaskDoneTool creates the completion-marker tool instance.
func createTaskDoneTool(_ AgentContext) (Tool, error) {
	return NewTaskDoneTool(), nil
}

// Interface compliance checks.
var (
	_ Tool = (*ShellTool)(nil)
	_ Tool = (*ReadFileTool)(nil)
	_ Tool = (*WriteFileTool)(nil)
	_ Tool = (*ListDirTool)(nil)
	_ Tool = (*TaskDoneTool)(nil)
)

//nolint:gochecknoinits // Built-in tools register themselves at package load
func init() {
	Register(ToolShell, createShellTool, &ToolMeta{
		Description: "Execute a shell command in the workspace",
		InputSchema: shellInputSchema(),
	})
	Register(ToolReadFile, createReadFileTool, &ToolMeta{
		Description: "Read contents of a file from the workspace",
		InputSchema: readFileInputSchema(),
	})
	Register(ToolWriteFile, createWriteFileTool, &ToolMeta{
		Description: "Write content to a file in the workspace",
		InputSchema: writeFileInputSchema(),
	})
	Register(ToolListDir, createListDirTool, &ToolMeta{
		Description: "List files under a workspace directory",
		InputSchema: listDirInputSchema(),
	})
	Register(ToolTaskDone, createTaskDoneTool, &ToolMeta{
		Description: "Signal that the task is complete",
		InputSchema: taskDoneInputSchema(),
	})
}
