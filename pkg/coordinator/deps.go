package coordinator

import (
	"sort"
	"strings"

	"agentcore/pkg/execution"
)

// Group is one scheduling unit produced by the dependency analyzer:
// either a pool of mutually independent actions (no internal edges, safe
// to run in parallel) or one dependency-connected component (run
// sequentially in request order).
type Group struct {
	// Indices are positions in the original request list, ascending.
	Indices []int
	// HasEdges reports whether any dependency edge links members.
	HasEdges bool
}

// AnalyzeDependencies partitions actions into ordered execution groups
// using a textual heuristic: an action depends on an earlier action when
// the earlier action's name or call id appears in its serialized
// arguments. This is best-effort, not semantic analysis; a false positive
// merely serializes work that could have run in parallel. Edges only ever
// point backward in request order, so no cycle can form. Actions touched
// by no edge are pooled into a single independent group. Groups are
// ordered by the request index of their earliest member.
func AnalyzeDependencies(actions []execution.ToolCall) []Group {
	n := len(actions)
	if n == 0 {
		return nil
	}

	adj := make([][]int, n)
	linked := make([]bool, n)
	for i := 1; i < n; i++ {
		payload := actions[i].SerializedArgs()
		for j := 0; j < i; j++ {
			if referencesAction(payload, &actions[j]) {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
				linked[i] = true
				linked[j] = true
			}
		}
	}

	visited := make([]bool, n)
	var groups []Group
	var pool []int

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		if !linked[i] {
			visited[i] = true
			pool = append(pool, i)
			continue
		}

		// Walk the whole connected component.
		members := []int{i}
		visited[i] = true
		for cursor := 0; cursor < len(members); cursor++ {
			for _, next := range adj[members[cursor]] {
				if !visited[next] {
					visited[next] = true
					members = append(members, next)
				}
			}
		}
		sort.Ints(members)
		groups = append(groups, Group{Indices: members, HasEdges: true})
	}

	if len(pool) > 0 {
		groups = append(groups, Group{Indices: pool})
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Indices[0] < groups[b].Indices[0]
	})
	return groups
}

// referencesAction reports whether the serialized payload mentions the
// earlier action's call id or name. Empty ids and names never match.
func referencesAction(payload string, prior *execution.ToolCall) bool {
	if prior.ID != "" && strings.Contains(payload, prior.ID) {
		return true
	}
	return prior.Name != "" && strings.Contains(payload, prior.Name)
}
