package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// queryRule maps a PromQL substring to a canned vector result. Rules are
// matched in order, so more specific substrings must come first.
type queryRule struct {
	substr string
	result string
}

func fakePrometheus(t *testing.T, rules []queryRule) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		query := r.FormValue("query")
		for _, rule := range rules {
			if strings.Contains(query, rule.substr) {
				fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`, rule.result)
				return
			}
		}
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
}

func TestGetExecutionStats(t *testing.T) {
	ts := fakePrometheus(t, []queryRule{
		{`state="completed"`, `{"metric":{},"value":[1724580000,"5"]}`},
		{`state="error"`, `{"metric":{},"value":[1724580000,"2"]}`},
		{`state="cancelled"`, `{"metric":{},"value":[1724580000,"1"]}`},
		{`type="prompt"`, `{"metric":{},"value":[1724580000,"1000"]}`},
		{`type="completion"`, `{"metric":{},"value":[1724580000,"250"]}`},
	})
	defer ts.Close()

	svc, err := NewQueryService(ts.URL, "agentcore")
	if err != nil {
		t.Fatalf("Failed to create query service: %v", err)
	}

	stats, err := svc.GetExecutionStats(context.Background())
	if err != nil {
		t.Fatalf("Failed to get execution stats: %v", err)
	}

	if stats.Completed != 5 || stats.Failed != 2 || stats.Cancelled != 1 {
		t.Errorf("Unexpected execution counts: %+v", stats)
	}
	if stats.PromptTokens != 1000 || stats.CompletionTokens != 250 {
		t.Errorf("Unexpected token counts: %+v", stats)
	}
	if stats.TotalTokens != 1250 {
		t.Errorf("Expected 1250 total tokens, got %d", stats.TotalTokens)
	}
}

func TestGetModelStats(t *testing.T) {
	ts := fakePrometheus(t, []queryRule{
		{`group by (model)`, `{"metric":{"model":"claude-sonnet-4-20250514"},"value":[1724580000,"1"]}`},
		{`type="prompt"`, `{"metric":{},"value":[1724580000,"900"]}`},
		{`type="completion"`, `{"metric":{},"value":[1724580000,"100"]}`},
		{`steps_total`, `{"metric":{},"value":[1724580000,"12"]}`},
		{`executions_total`, `{"metric":{},"value":[1724580000,"4"]}`},
	})
	defer ts.Close()

	svc, err := NewQueryService(ts.URL, "agentcore")
	if err != nil {
		t.Fatalf("Failed to create query service: %v", err)
	}

	stats, err := svc.GetModelStats(context.Background())
	if err != nil {
		t.Fatalf("Failed to get model stats: %v", err)
	}

	modelStats, ok := stats["claude-sonnet-4-20250514"]
	if !ok {
		t.Fatalf("Expected stats for the model, got %v", stats)
	}
	if modelStats.Executions != 4 || modelStats.Steps != 12 {
		t.Errorf("Unexpected counts: %+v", modelStats)
	}
	if modelStats.TotalTokens != 1000 {
		t.Errorf("Expected 1000 total tokens, got %d", modelStats.TotalTokens)
	}
}

func TestGetToolStats(t *testing.T) {
	ts := fakePrometheus(t, []queryRule{
		{`group by (tool)`, `{"metric":{"tool":"shell"},"value":[1724580000,"1"]}`},
		{`status="error"`, `{"metric":{},"value":[1724580000,"1"]}`},
		{`tool="shell"`, `{"metric":{},"value":[1724580000,"6"]}`},
	})
	defer ts.Close()

	svc, err := NewQueryService(ts.URL, "agentcore")
	if err != nil {
		t.Fatalf("Failed to create query service: %v", err)
	}

	stats, err := svc.GetToolStats(context.Background())
	if err != nil {
		t.Fatalf("Failed to get tool stats: %v", err)
	}

	toolStats, ok := stats["shell"]
	if !ok {
		t.Fatalf("Expected stats for shell, got %v", stats)
	}
	if toolStats.Invocations != 6 || toolStats.Failures != 1 {
		t.Errorf("Unexpected tool counts: %+v", toolStats)
	}
}

func TestQueriesCarryNamespace(t *testing.T) {
	var mu sync.Mutex
	var queries []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.FormValue("query"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
	defer ts.Close()

	svc, err := NewQueryService(ts.URL, "agentcore")
	if err != nil {
		t.Fatalf("Failed to create query service: %v", err)
	}
	if _, err := svc.GetExecutionStats(context.Background()); err != nil {
		t.Fatalf("Failed to get execution stats: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(queries) == 0 {
		t.Fatal("Expected queries to be issued")
	}
	for _, query := range queries {
		if !strings.Contains(query, "agentcore_") {
			t.Errorf("Query missing namespace prefix: %q", query)
		}
	}
}
