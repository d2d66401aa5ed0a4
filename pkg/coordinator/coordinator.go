// Package coordinator schedules the tool calls requested within a single
// step. It selects one of four strategies (sequential, parallel, smart,
// batched), runs every action through the shared retry policy, and returns
// results in request order regardless of completion order.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"agentcore/pkg/config"
	"agentcore/pkg/execution"
	"agentcore/pkg/logx"
	"agentcore/pkg/resilience/retry"
	"agentcore/pkg/tools"
)

// Backend executes a single tool call. tools.Provider implements this. The
// returned error is reserved for infrastructure faults worth retrying; a
// tool that ran and produced a bad outcome yields Success=false and a nil
// error.
type Backend interface {
	Execute(ctx context.Context, call execution.ToolCall) (execution.ToolResult, error)
}

// RouteReporter is implemented by backends that can say which executor
// serves a given tool name. When the backend supports it, Coordinate logs
// the route of every action before scheduling. Routing never affects
// results.
type RouteReporter interface {
	RouteOf(name string) tools.Route
}

// Strategy selects how the actions of one step are scheduled.
type Strategy string

const (
	// Sequential runs actions one at a time in request order.
	Sequential Strategy = config.StrategySequential
	// Parallel runs actions concurrently in waves bounded by MaxConcurrent.
	Parallel Strategy = config.StrategyParallel
	// Smart partitions actions by inferred dependencies and mixes
	// parallel and sequential sub-runs.
	Smart Strategy = config.StrategySmart
	// Batched runs fixed-size batches in sequence, each batch concurrently.
	Batched Strategy = config.StrategyBatched
)

// ParseStrategy maps a configured strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case Sequential, Parallel, Smart, Batched:
		return s, nil
	default:
		return "", fmt.Errorf("unknown coordination strategy %q", name)
	}
}

// Options tunes one coordinator instance.
type Options struct {
	// MaxConcurrent bounds concurrently running actions in the parallel,
	// smart, and batched strategies. Zero means the configured default.
	MaxConcurrent int
	// BatchSize is the batch width for the batched strategy. Zero means
	// the configured default.
	BatchSize int
	// ContinueOnError keeps scheduling actions after one fails. When
	// false the coordinator stops scheduling new actions but still
	// returns the results already produced.
	ContinueOnError bool
}

// Coordinator runs the actions of a single step under a strategy. It is
// safe to reuse across steps: all per-invocation state lives in Coordinate.
type Coordinator struct {
	backend Backend
	policy  *retry.Policy
	logger  *logx.Logger
	opts    Options
}

// New creates a coordinator over the given execution backend. A nil policy
// gets the default retry configuration.
func New(backend Backend, policy *retry.Policy, opts Options) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = config.DefaultMaxConcurrentActions
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultConfig, nil)
	}
	return &Coordinator{
		backend: backend,
		policy:  policy,
		logger:  logx.NewLogger("coordinator"),
		opts:    opts,
	}
}

// Coordinate executes actions under the given strategy and returns one
// result per attempted action, in request order. Zero actions returns an
// empty list without touching the backend. A non-nil error means the run
// was cut short (cancellation or timeout); results produced before the
// cut are still returned.
func (c *Coordinator) Coordinate(ctx context.Context, actions []execution.ToolCall, strategy Strategy) ([]execution.ToolResult, error) {
	if len(actions) == 0 {
		return []execution.ToolResult{}, nil
	}

	c.logger.Info("🚦 Coordinating %d actions with %s strategy", len(actions), strategy)
	c.reportRoutes(actions)

	start := time.Now()
	var (
		results []execution.ToolResult
		err     error
	)
	switch strategy {
	case Sequential:
		results, err = c.runSequential(ctx, actions)
	case Parallel:
		results, err = c.runParallel(ctx, actions)
	case Smart:
		results, err = c.runSmart(ctx, actions)
	case Batched:
		results, err = c.runBatched(ctx, actions)
	default:
		return nil, fmt.Errorf("unknown coordination strategy %q", strategy)
	}
	if err != nil {
		return results, err
	}

	c.logger.Info("✅ %d/%d actions succeeded in %.3fs",
		countSuccesses(results), len(actions), time.Since(start).Seconds())
	return results, nil
}

// reportRoutes logs which backend will serve each action, when the
// backend can tell.
func (c *Coordinator) reportRoutes(actions []execution.ToolCall) {
	router, ok := c.backend.(RouteReporter)
	if !ok {
		return
	}
	for i := range actions {
		c.logger.Debug("🔀 %s scheduled via %s backend (call %s)",
			actions[i].Name, router.RouteOf(actions[i].Name), actions[i].ID)
	}
}

// executeOneErr runs one action through the retry policy, preserving the
// final error when attempts are exhausted or the fault is not retryable.
func (c *Coordinator) executeOneErr(ctx context.Context, call execution.ToolCall) (execution.ToolResult, error) {
	var result execution.ToolResult
	err := c.policy.Execute(ctx, "tool "+call.Name, func(ctx context.Context) error {
		var execErr error
		result, execErr = c.backend.Execute(ctx, call)
		return execErr
	})
	if err != nil {
		return execution.ToolResult{}, err
	}
	if result.CallID == "" {
		result.CallID = call.ID
	}
	return result, nil
}

// executeOne is executeOneErr with the error folded into a failed result.
// One action's backend fault never aborts its siblings directly; whether
// to keep scheduling is the strategy's call via ContinueOnError.
func (c *Coordinator) executeOne(ctx context.Context, call execution.ToolCall) execution.ToolResult {
	result, err := c.executeOneErr(ctx, call)
	if err != nil {
		return execution.FailureResult(call.ID, err.Error())
	}
	return result
}

func countSuccesses(results []execution.ToolResult) int {
	count := 0
	for i := range results {
		if results[i].Success {
			count++
		}
	}
	return count
}

func anyFailed(results []execution.ToolResult) bool {
	for i := range results {
		if !results[i].Success {
			return true
		}
	}
	return false
}
