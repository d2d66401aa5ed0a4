package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"

	"agentcore/pkg/execution"
)

// ExecutionStats represents aggregate execution counts and token usage
// read back from Prometheus.
type ExecutionStats struct {
	Completed        int64 `json:"completed"`
	Failed           int64 `json:"failed"`
	Cancelled        int64 `json:"cancelled"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ModelStats represents aggregate metrics for a single model.
type ModelStats struct {
	Model            string `json:"model"`
	Executions       int64  `json:"executions"`
	Steps            int64  `json:"steps"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// ToolStats represents aggregate action counts for a single tool.
type ToolStats struct {
	Tool        string `json:"tool"`
	Invocations int64  `json:"invocations"`
	Failures    int64  `json:"failures"`
}

// QueryService provides methods to query recorded execution metrics from
// Prometheus. The namespace must match the one the observer was
// registered with.
type QueryService struct {
	client    api.Client
	queryAPI  v1.API
	namespace string
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL, namespace string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:    client,
		queryAPI:  v1.NewAPI(client),
		namespace: namespace,
	}, nil
}

// GetExecutionStats retrieves aggregate execution counts and token usage
// across all recorded executions.
func (q *QueryService) GetExecutionStats(ctx context.Context) (*ExecutionStats, error) {
	stats := &ExecutionStats{}

	var err error
	if stats.Completed, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{state=%q})`,
		q.metricName("executions_total"), execution.ExecutionCompleted)); err != nil {
		return nil, err
	}
	if stats.Failed, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{state=%q})`,
		q.metricName("executions_total"), execution.ExecutionError)); err != nil {
		return nil, err
	}
	if stats.Cancelled, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{state=%q})`,
		q.metricName("executions_total"), execution.ExecutionCancelled)); err != nil {
		return nil, err
	}
	if stats.PromptTokens, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{type="prompt"})`,
		q.metricName("tokens_total"))); err != nil {
		return nil, err
	}
	if stats.CompletionTokens, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{type="completion"})`,
		q.metricName("tokens_total"))); err != nil {
		return nil, err
	}
	stats.TotalTokens = stats.PromptTokens + stats.CompletionTokens

	return stats, nil
}

// GetModelStats retrieves metrics broken down by model, showing which
// models ran executions and what they consumed.
func (q *QueryService) GetModelStats(ctx context.Context) (map[string]*ModelStats, error) {
	models, err := q.labelValues(ctx, fmt.Sprintf(`group by (model) (%s)`,
		q.metricName("executions_total")), "model")
	if err != nil {
		return nil, err
	}

	result := make(map[string]*ModelStats)
	for _, modelName := range models {
		stats := &ModelStats{Model: modelName}

		if stats.Executions, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{model=%q})`,
			q.metricName("executions_total"), modelName)); err != nil {
			return nil, err
		}
		if stats.Steps, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{model=%q})`,
			q.metricName("steps_total"), modelName)); err != nil {
			return nil, err
		}
		if stats.PromptTokens, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{model=%q, type="prompt"})`,
			q.metricName("tokens_total"), modelName)); err != nil {
			return nil, err
		}
		if stats.CompletionTokens, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{model=%q, type="completion"})`,
			q.metricName("tokens_total"), modelName)); err != nil {
			return nil, err
		}
		stats.TotalTokens = stats.PromptTokens + stats.CompletionTokens

		result[modelName] = stats
	}

	return result, nil
}

// GetToolStats retrieves action counts broken down by tool.
func (q *QueryService) GetToolStats(ctx context.Context) (map[string]*ToolStats, error) {
	tools, err := q.labelValues(ctx, fmt.Sprintf(`group by (tool) (%s)`,
		q.metricName("actions_total")), "tool")
	if err != nil {
		return nil, err
	}

	result := make(map[string]*ToolStats)
	for _, tool := range tools {
		stats := &ToolStats{Tool: tool}

		if stats.Invocations, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{tool=%q})`,
			q.metricName("actions_total"), tool)); err != nil {
			return nil, err
		}
		if stats.Failures, err = q.sumQuery(ctx, fmt.Sprintf(`sum(%s{tool=%q, status="error"})`,
			q.metricName("actions_total"), tool)); err != nil {
			return nil, err
		}

		result[tool] = stats
	}

	return result, nil
}

// metricName returns the fully qualified name of a metric the observer
// registered under this service's namespace.
func (q *QueryService) metricName(name string) string {
	return prometheus.BuildFQName(q.namespace, "", name)
}

// sumQuery evaluates an instant query expected to yield a single scalar
// sample. A missing series reads as zero.
func (q *QueryService) sumQuery(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %q: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

// labelValues evaluates a group-by query and extracts the values of one
// label across the resulting series.
func (q *QueryService) labelValues(ctx context.Context, query, label string) ([]string, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", query, err)
	}

	var values []string
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if value, ok := sample.Metric[model.LabelName(label)]; ok {
				values = append(values, string(value))
			}
		}
	}
	return values, nil
}
