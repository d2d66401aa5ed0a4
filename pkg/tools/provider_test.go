package tools

import (
	"context"
	"strings"
	"sync"
	"testing"

	execpkg "agentcore/pkg/exec"
	"agentcore/pkg/execution"
)

// mockExecutor records every command and replies with a scripted result.
type mockExecutor struct {
	err    error
	name   execpkg.ExecutorType
	calls  [][]string
	result execpkg.Result
	mu     sync.Mutex
}

var _ execpkg.Executor = (*mockExecutor)(nil)

func newMockExecutor(name execpkg.ExecutorType) *mockExecutor {
	return &mockExecutor{name: name}
}

func (m *mockExecutor) Run(_ context.Context, cmd []string, _ *execpkg.Opts) (execpkg.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)
	return m.result, m.err
}

func (m *mockExecutor) Name() execpkg.ExecutorType { return m.name }
func (m *mockExecutor) Available() bool            { return true }

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockExecutor) lastScript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	cmd := m.calls[len(m.calls)-1]
	return cmd[len(cmd)-1]
}

func newTestProvider(t *testing.T, local, sandbox *mockExecutor, sandboxTools []string) *Provider {
	t.Helper()
	localCtx := AgentContext{Executor: local, WorkDir: "/tmp/ws"}
	sandboxCtx := AgentContext{WorkDir: "/workspace"}
	if sandbox != nil {
		sandboxCtx.Executor = sandbox
	}
	p, err := NewProvider(localCtx, sandboxCtx, nil, sandboxTools)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p
}

func TestNormalizeToolName(t *testing.T) {
	cases := map[string]string{
		"read_file": "readfile",
		"ReadFile":  "readfile",
		"READFILE":  "readfile",
		"shell":     "shell",
	}
	for in, want := range cases {
		if got := NormalizeToolName(in); got != want {
			t.Errorf("NormalizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewProvider_RejectsUnknownTool(t *testing.T) {
	localCtx := AgentContext{Executor: newMockExecutor(execpkg.ExecutorTypeLocal)}
	_, err := NewProvider(localCtx, AgentContext{}, []string{"no_such_tool"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown tool in allow-list")
	}
}

func TestNewProvider_RequiresLocalExecutor(t *testing.T) {
	_, err := NewProvider(AgentContext{}, AgentContext{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing local executor")
	}
}

func TestProvider_AllowListEnforced(t *testing.T) {
	localCtx := AgentContext{Executor: newMockExecutor(execpkg.ExecutorTypeLocal)}
	p, err := NewProvider(localCtx, AgentContext{}, []string{ToolShell}, nil)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	if _, err := p.Get(ToolReadFile); err == nil {
		t.Error("Get should reject a tool outside the allow-list")
	}

	result, err := p.Execute(context.Background(), execution.NewToolCall("call_1", ToolReadFile, map[string]any{"path": "a.txt"}))
	if err != nil {
		t.Fatalf("Execute returned infra error for disallowed tool: %v", err)
	}
	if result.Success {
		t.Error("disallowed tool should produce a failed result")
	}
	if result.ErrorMessage == "" {
		t.Error("failed result should carry an error message")
	}
}

func TestProvider_RoutingByNormalizedName(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	sandbox := newMockExecutor(execpkg.ExecutorTypeDocker)
	// Allow-list entries use a different naming convention on purpose.
	p := newTestProvider(t, local, sandbox, []string{"ReadFile", "SHELL"})

	if got := p.RouteOf(ToolReadFile); got != RouteSandbox {
		t.Errorf("read_file route = %s, want sandbox", got)
	}
	if got := p.RouteOf(ToolShell); got != RouteSandbox {
		t.Errorf("shell route = %s, want sandbox", got)
	}
	if got := p.RouteOf(ToolListDir); got != RouteLocal {
		t.Errorf("list_dir route = %s, want local", got)
	}
}

func TestProvider_NoSandboxExecutorFallsBackToLocal(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	p := newTestProvider(t, local, nil, []string{ToolShell})

	if got := p.RouteOf(ToolShell); got != RouteLocal {
		t.Errorf("route without sandbox executor = %s, want local", got)
	}

	_, err := p.Execute(context.Background(), execution.NewToolCall("call_1", ToolShell, map[string]any{"cmd": "true"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if local.callCount() != 1 {
		t.Errorf("local executor calls = %d, want 1", local.callCount())
	}
}

func TestProvider_SandboxedCallUsesSandboxExecutor(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	sandbox := newMockExecutor(execpkg.ExecutorTypeDocker)
	p := newTestProvider(t, local, sandbox, []string{ToolShell})

	if _, err := p.Execute(context.Background(), execution.NewToolCall("call_1", ToolShell, map[string]any{"cmd": "echo hi"})); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sandbox.callCount() != 1 {
		t.Errorf("sandbox executor calls = %d, want 1", sandbox.callCount())
	}
	if local.callCount() != 0 {
		t.Errorf("local executor calls = %d, want 0", local.callCount())
	}
}

func TestProvider_SwapSandboxToolsRebindsCachedTools(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	sandbox := newMockExecutor(execpkg.ExecutorTypeDocker)
	p := newTestProvider(t, local, sandbox, nil)

	call := execution.NewToolCall("call_1", ToolShell, map[string]any{"cmd": "true"})
	if _, err := p.Execute(context.Background(), call); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if local.callCount() != 1 {
		t.Fatalf("expected first call on local executor, got %d", local.callCount())
	}

	p.SwapSandboxTools([]string{ToolShell})

	if _, err := p.Execute(context.Background(), call); err != nil {
		t.Fatalf("Execute after swap: %v", err)
	}
	if sandbox.callCount() != 1 {
		t.Errorf("sandbox executor calls after swap = %d, want 1", sandbox.callCount())
	}
}

func TestProvider_ExecuteSuccess(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	local.result = execpkg.Result{Stdout: "hello\n", ExitCode: 0}
	p := newTestProvider(t, local, nil, nil)

	result, err := p.Execute(context.Background(), execution.NewToolCall("call_1", ToolShell, map[string]any{"cmd": "echo hello"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Errorf("result.Success = false, want true (error: %s)", result.ErrorMessage)
	}
	if result.CallID != "call_1" {
		t.Errorf("result.CallID = %q, want call_1", result.CallID)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("result content missing stdout: %q", result.Content)
	}
}

func TestProvider_NonZeroExitIsFailedResultNotError(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	local.result = execpkg.Result{Stderr: "boom", ExitCode: 2}
	p := newTestProvider(t, local, nil, nil)

	result, err := p.Execute(context.Background(), execution.NewToolCall("call_1", ToolShell, map[string]any{"cmd": "false"}))
	if err != nil {
		t.Fatalf("non-zero exit must not surface as an infra error: %v", err)
	}
	if result.Success {
		t.Error("result.Success = true, want false for non-zero exit")
	}
	if !strings.Contains(result.ErrorMessage, "exited with code 2") {
		t.Errorf("error message = %q, want exit code detail", result.ErrorMessage)
	}
	if !strings.Contains(result.Content, "boom") {
		t.Errorf("stderr should still reach the model, got %q", result.Content)
	}
}

func TestProvider_CancelledContextIsInfraError(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	p := newTestProvider(t, local, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, execution.NewToolCall("call_1", ToolShell, map[string]any{"cmd": "true"}))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if local.callCount() != 0 {
		t.Errorf("executor should not run after cancellation, calls = %d", local.callCount())
	}
}

func TestProvider_DefinitionsCoverAllowedTools(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	p := newTestProvider(t, local, nil, nil)

	defs := p.Definitions()
	if len(defs) != len(DefaultTools) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(DefaultTools))
	}
	seen := make(map[string]bool, len(defs))
	for i := range defs {
		seen[defs[i].Name] = true
		if defs[i].InputSchema.Type != "object" {
			t.Errorf("tool %s schema type = %q, want object", defs[i].Name, defs[i].InputSchema.Type)
		}
	}
	for _, name := range DefaultTools {
		if !seen[name] {
			t.Errorf("missing definition for %s", name)
		}
	}
}

func TestProvider_DocumentationListsTools(t *testing.T) {
	local := newMockExecutor(execpkg.ExecutorTypeLocal)
	p := newTestProvider(t, local, nil, nil)

	doc := p.GenerateToolDocumentation()
	for _, name := range DefaultTools {
		if !strings.Contains(doc, "**"+name+"**") {
			t.Errorf("documentation missing %s", name)
		}
	}
}

func TestListTools_SortedAndComplete(t *testing.T) {
	metas := ListTools()
	if len(metas) < len(DefaultTools) {
		t.Fatalf("registry has %d tools, want at least %d", len(metas), len(DefaultTools))
	}
	for i := 1; i < len(metas); i++ {
		if metas[i-1].Name > metas[i].Name {
			t.Errorf("ListTools not sorted: %s before %s", metas[i-1].Name, metas[i].Name)
		}
	}
}
