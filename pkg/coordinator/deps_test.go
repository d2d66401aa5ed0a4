package coordinator_test

import (
	"testing"

	"agentcore/pkg/coordinator"
	"agentcore/pkg/execution"
)

func TestAnalyzeDependenciesEmpty(t *testing.T) {
	if groups := coordinator.AnalyzeDependencies(nil); groups != nil {
		t.Errorf("Expected nil groups for no actions, got %v", groups)
	}
}

func TestAnalyzeDependenciesSingleAction(t *testing.T) {
	actions := []execution.ToolCall{
		execution.NewToolCall("call_a", "shell", map[string]any{"cmd": "ls"}),
	}
	groups := coordinator.AnalyzeDependencies(actions)
	if len(groups) != 1 || len(groups[0].Indices) != 1 {
		t.Fatalf("Expected one singleton group, got %v", groups)
	}
	if groups[0].HasEdges {
		t.Error("Singleton group should have no edges")
	}
}

func TestAnalyzeDependenciesIndependentPool(t *testing.T) {
	actions := []execution.ToolCall{
		execution.NewToolCall("call_a", "read_file", map[string]any{"path": "a.txt"}),
		execution.NewToolCall("call_b", "read_file", map[string]any{"path": "b.txt"}),
		execution.NewToolCall("call_c", "list_dir", map[string]any{"path": "src"}),
	}
	groups := coordinator.AnalyzeDependencies(actions)

	if len(groups) != 1 {
		t.Fatalf("Expected independent actions pooled into one group, got %d groups", len(groups))
	}
	if len(groups[0].Indices) != 3 {
		t.Errorf("Expected pool of 3, got %d", len(groups[0].Indices))
	}
	if groups[0].HasEdges {
		t.Error("Independent pool should have no internal edges")
	}
}

func TestAnalyzeDependenciesChain(t *testing.T) {
	// B references A's call id, C references B's name.
	actions := []execution.ToolCall{
		execution.NewToolCall("call_a", "write_file", map[string]any{"path": "gen.txt"}),
		execution.NewToolCall("call_b", "verify_output", map[string]any{"source": "call_a"}),
		execution.NewToolCall("call_c", "shell", map[string]any{"cmd": "grep done verify_output.log"}),
	}
	groups := coordinator.AnalyzeDependencies(actions)

	if len(groups) != 1 {
		t.Fatalf("Expected one connected group, got %d", len(groups))
	}
	if !groups[0].HasEdges {
		t.Error("Chained group should have edges")
	}
	for i, idx := range groups[0].Indices {
		if idx != i {
			t.Errorf("Expected ascending request order, got %v", groups[0].Indices)
		}
	}
}

func TestAnalyzeDependenciesMixed(t *testing.T) {
	actions := []execution.ToolCall{
		execution.NewToolCall("call_a", "write_file", map[string]any{"path": "out.txt"}),
		execution.NewToolCall("call_b", "read_file", map[string]any{"after": "call_a"}),
		execution.NewToolCall("call_c", "list_dir", map[string]any{"path": "src"}),
		execution.NewToolCall("call_d", "shell", map[string]any{"cmd": "echo hi"}),
	}
	groups := coordinator.AnalyzeDependencies(actions)

	if len(groups) != 2 {
		t.Fatalf("Expected a linked pair plus an independent pool, got %d groups", len(groups))
	}

	// The component containing the earliest action comes first.
	if got := groups[0].Indices; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Expected linked group [0 1], got %v", got)
	}
	if !groups[0].HasEdges {
		t.Error("Linked group should have edges")
	}
	if got := groups[1].Indices; len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Expected independent pool [2 3], got %v", got)
	}
	if groups[1].HasEdges {
		t.Error("Independent pool should have no edges")
	}
}

func TestAnalyzeDependenciesOnlyLinksBackward(t *testing.T) {
	// Mutual textual references: only the later-declared action becomes
	// the dependent, so request order already satisfies the edge and no
	// cycle can form.
	actions := []execution.ToolCall{
		execution.NewToolCall("call_a", "prepare", map[string]any{"next": "call_b"}),
		execution.NewToolCall("call_b", "consume", map[string]any{"from": "call_a"}),
	}
	groups := coordinator.AnalyzeDependencies(actions)

	if len(groups) != 1 {
		t.Fatalf("Expected one group, got %d", len(groups))
	}
	if !groups[0].HasEdges {
		t.Error("Mutually referencing actions should be linked")
	}
	if groups[0].Indices[0] != 0 || groups[0].Indices[1] != 1 {
		t.Errorf("Expected request order [0 1], got %v", groups[0].Indices)
	}
}

func TestAnalyzeDependenciesSubstringMatchIsConservative(t *testing.T) {
	// "tools" contains "ls": the heuristic links them. A false positive
	// only costs parallelism, never correctness.
	actions := []execution.ToolCall{
		execution.NewToolCall("call_a", "ls", map[string]any{"path": "."}),
		execution.NewToolCall("call_b", "read_file", map[string]any{"path": "tools"}),
	}
	groups := coordinator.AnalyzeDependencies(actions)

	if len(groups) != 1 {
		t.Fatalf("Expected the substring match to link both actions, got %d groups", len(groups))
	}
	if !groups[0].HasEdges {
		t.Error("Expected an edge from the substring match")
	}
}
