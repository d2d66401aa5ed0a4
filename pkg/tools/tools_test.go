package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	execpkg "agentcore/pkg/exec"
)

func decodeResult(t *testing.T, res *ExecResult) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(res.Content), &m); err != nil {
		t.Fatalf("result content is not JSON: %v (%q)", err, res.Content)
	}
	return m
}

func TestShellTool_RejectsTraversalCwd(t *testing.T) {
	tool := NewShellToolWithConfig(newMockExecutor(execpkg.ExecutorTypeLocal), "/ws", false, false, nil)

	res, err := tool.Exec(context.Background(), map[string]any{"cmd": "ls", "cwd": "../outside"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Failed {
		t.Error("traversal cwd should fail")
	}
}

func TestShellTool_MissingCmd(t *testing.T) {
	tool := NewShellTool(newMockExecutor(execpkg.ExecutorTypeLocal))

	res, err := tool.Exec(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Failed {
		t.Error("missing cmd should fail")
	}
	m := decodeResult(t, res)
	if m["success"] != false {
		t.Error("JSON payload should report success=false")
	}
}

func TestReadFileTool_ParsesSentinelAndTruncation(t *testing.T) {
	mock := newMockExecutor(execpkg.ExecutorTypeLocal)
	mock.result = execpkg.Result{
		Stdout:   "     1\tpackage main\n     2\tfunc main() {}\n\n__TOTAL_LINES__50\n",
		ExitCode: 0,
	}
	tool := NewReadFileTool(mock, "/ws", 0)

	res, err := tool.Exec(context.Background(), map[string]any{"path": "main.go", "limit": 2})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	m := decodeResult(t, res)
	if m["success"] != true {
		t.Fatalf("success = %v, want true", m["success"])
	}
	if m["total_lines"] != float64(50) {
		t.Errorf("total_lines = %v, want 50", m["total_lines"])
	}
	if m["truncated"] != true {
		t.Error("50 lines with limit 2 should report truncated")
	}
	content, _ := m["content"].(string)
	if strings.Contains(content, "__TOTAL_LINES__") {
		t.Error("sentinel leaked into content")
	}
	if !strings.Contains(content, "package main") {
		t.Errorf("content = %q, want file body", content)
	}
}

func TestReadFileTool_RejectsTraversal(t *testing.T) {
	tool := NewReadFileTool(newMockExecutor(execpkg.ExecutorTypeLocal), "/ws", 0)

	res, err := tool.Exec(context.Background(), map[string]any{"path": "../etc/passwd"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Failed {
		t.Error("traversal path should fail")
	}
}

func TestReadFileTool_NonZeroExit(t *testing.T) {
	mock := newMockExecutor(execpkg.ExecutorTypeLocal)
	mock.result = execpkg.Result{Stderr: "awk: no such file", ExitCode: 2}
	tool := NewReadFileTool(mock, "/ws", 0)

	res, err := tool.Exec(context.Background(), map[string]any{"path": "missing.txt"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Failed {
		t.Error("unreadable file should fail")
	}
	if !strings.Contains(res.Error, "missing.txt") {
		t.Errorf("error = %q, want path mentioned", res.Error)
	}
}

func TestWriteFileTool_EncodesContentAndMakesParentDirs(t *testing.T) {
	mock := newMockExecutor(execpkg.ExecutorTypeLocal)
	tool := NewWriteFileTool(mock, "/ws")

	content := "hello 'quoted' world\nline two\n"
	res, err := tool.Exec(context.Background(), map[string]any{"path": "sub/dir/out.txt", "content": content})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Failed {
		t.Fatalf("write failed: %s", res.Error)
	}

	script := mock.lastScript()
	if !strings.Contains(script, "mkdir -p '/ws/sub/dir'") {
		t.Errorf("script missing parent mkdir: %q", script)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	if !strings.Contains(script, encoded) {
		t.Errorf("script missing base64 payload: %q", script)
	}
	if !strings.Contains(script, "base64 -d > '/ws/sub/dir/out.txt'") {
		t.Errorf("script missing decode redirect: %q", script)
	}

	m := decodeResult(t, res)
	if m["bytes_written"] != float64(len(content)) {
		t.Errorf("bytes_written = %v, want %d", m["bytes_written"], len(content))
	}
}

func TestWriteFileTool_RejectsTraversal(t *testing.T) {
	tool := NewWriteFileTool(newMockExecutor(execpkg.ExecutorTypeLocal), "/ws")

	res, err := tool.Exec(context.Background(), map[string]any{"path": "../../etc/crontab", "content": "x"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Failed {
		t.Error("traversal path should fail")
	}
}

func TestListDirTool_BuildsFindCommand(t *testing.T) {
	mock := newMockExecutor(execpkg.ExecutorTypeLocal)
	mock.result = execpkg.Result{Stdout: "./a.go\n./b.go\n", ExitCode: 0}
	tool := NewListDirTool(mock, "/ws", 0)

	res, err := tool.Exec(context.Background(), map[string]any{"pattern": "*.go", "recursive": true})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	script := mock.lastScript()
	if !strings.Contains(script, "cd '/ws'") {
		t.Errorf("script missing workspace cd: %q", script)
	}
	if strings.Contains(script, "-maxdepth 1") {
		t.Errorf("recursive listing must not cap depth: %q", script)
	}
	if !strings.Contains(script, "-name '*.go'") {
		t.Errorf("script missing pattern filter: %q", script)
	}

	m := decodeResult(t, res)
	files, _ := m["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2 entries", files)
	}
	if files[0] != "a.go" {
		t.Errorf("files[0] = %v, want a.go (./ prefix stripped)", files[0])
	}
}

func TestListDirTool_ShallowByDefault(t *testing.T) {
	mock := newMockExecutor(execpkg.ExecutorTypeLocal)
	tool := NewListDirTool(mock, "/ws", 0)

	if _, err := tool.Exec(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !strings.Contains(mock.lastScript(), "-maxdepth 1") {
		t.Errorf("default listing should be shallow: %q", mock.lastScript())
	}
}

func TestTaskDoneTool_RequiresSummary(t *testing.T) {
	tool := NewTaskDoneTool()

	res, err := tool.Exec(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Failed {
		t.Error("missing summary should fail")
	}

	res, err = tool.Exec(context.Background(), map[string]any{"summary": "all tests pass"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Failed {
		t.Errorf("valid summary should succeed: %s", res.Error)
	}
	m := decodeResult(t, res)
	if m["summary"] != "all tests pass" {
		t.Errorf("summary = %v", m["summary"])
	}
}

func TestShellQuote_EscapesSingleQuotes(t *testing.T) {
	quoted := shellQuote("it's here")
	if quoted != `'it'"'"'s here'` {
		t.Errorf("shellQuote = %q", quoted)
	}
}
