package coordinator

import (
	"context"
	"fmt"
	"sync"

	"agentcore/pkg/execution"
)

// runSequential executes actions one at a time in request order. On a
// failed result with ContinueOnError disabled, the remaining actions are
// never scheduled and the result list stops at the attempted count.
func (c *Coordinator) runSequential(ctx context.Context, actions []execution.ToolCall) ([]execution.ToolResult, error) {
	results := make([]execution.ToolResult, 0, len(actions))
	for i := range actions {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := c.executeOne(ctx, actions[i])
		results = append(results, result)

		if !result.Success && !c.opts.ContinueOnError {
			c.logger.Warn("⚠️  Action %s failed, skipping %d remaining actions",
				actions[i].Name, len(actions)-i-1)
			break
		}
	}
	return results, nil
}

// runParallel executes actions concurrently in waves of MaxConcurrent.
// Results are written by index so order matches the request order no
// matter which action finishes first. With ContinueOnError disabled a
// failure in one wave stops later waves from being scheduled; the wave's
// own siblings always run to completion.
func (c *Coordinator) runParallel(ctx context.Context, actions []execution.ToolCall) ([]execution.ToolResult, error) {
	results := make([]execution.ToolResult, len(actions))

	for waveStart := 0; waveStart < len(actions); waveStart += c.opts.MaxConcurrent {
		if err := ctx.Err(); err != nil {
			return results[:waveStart], err
		}

		waveEnd := waveStart + c.opts.MaxConcurrent
		if waveEnd > len(actions) {
			waveEnd = len(actions)
		}

		var wg sync.WaitGroup
		for i := waveStart; i < waveEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.executeOne(ctx, actions[i])
			}(i)
		}
		wg.Wait()

		if !c.opts.ContinueOnError && anyFailed(results[waveStart:waveEnd]) {
			c.logger.Warn("⚠️  Wave %d-%d had failures, skipping %d remaining actions",
				waveStart+1, waveEnd, len(actions)-waveEnd)
			return results[:waveEnd], nil
		}
	}
	return results, nil
}

// runSmart partitions actions by inferred dependencies and executes each
// group in turn: a single action directly, an edge-free group in parallel,
// a dependency-linked group sequentially in request order (which satisfies
// every edge, since edges only point backward).
func (c *Coordinator) runSmart(ctx context.Context, actions []execution.ToolCall) ([]execution.ToolResult, error) {
	groups := AnalyzeDependencies(actions)
	c.logger.Info("🧠 %d actions partitioned into %d dependency groups", len(actions), len(groups))

	results := make([]execution.ToolResult, len(actions))
	filled := make([]bool, len(actions))

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return compactResults(results, filled), err
		}

		groupActions := make([]execution.ToolCall, len(group.Indices))
		for k, idx := range group.Indices {
			groupActions[k] = actions[idx]
		}

		var groupResults []execution.ToolResult
		var err error
		switch {
		case len(groupActions) == 1:
			groupResults = []execution.ToolResult{c.executeOne(ctx, groupActions[0])}
		case group.HasEdges:
			groupResults, err = c.runSequential(ctx, groupActions)
		default:
			groupResults, err = c.runParallel(ctx, groupActions)
		}

		for k := range groupResults {
			idx := group.Indices[k]
			results[idx] = groupResults[k]
			filled[idx] = true
		}
		if err != nil {
			return compactResults(results, filled), err
		}
		if !c.opts.ContinueOnError && anyFailed(groupResults) {
			c.logger.Warn("⚠️  Dependency group had failures, skipping remaining groups")
			return compactResults(results, filled), nil
		}
	}

	return results, nil
}

// runBatched partitions actions into fixed-size batches in request order
// and runs the batches in sequence, each batch concurrently. A batch that
// hits an infrastructure fault fails as a unit: every action in it gets a
// synthetic failed result. Unless ContinueOnError is set, a failed batch
// aborts the remaining batches.
func (c *Coordinator) runBatched(ctx context.Context, actions []execution.ToolCall) ([]execution.ToolResult, error) {
	results := make([]execution.ToolResult, 0, len(actions))

	for start := 0; start < len(actions); start += c.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + c.opts.BatchSize
		if end > len(actions) {
			end = len(actions)
		}
		batch := actions[start:end]

		batchResults, err := c.runBatch(ctx, batch)
		if err != nil {
			// Cancellation is not a batch fault; surface it.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			c.logger.Warn("⚠️  Batch %d-%d failed: %v", start+1, end, err)
			for i := range batch {
				results = append(results, execution.FailureResult(batch[i].ID,
					fmt.Sprintf("batch aborted: %v", err)))
			}
			if !c.opts.ContinueOnError {
				return results, nil
			}
			continue
		}

		results = append(results, batchResults...)
		if !c.opts.ContinueOnError && anyFailed(batchResults) {
			c.logger.Warn("⚠️  Batch %d-%d had failures, skipping %d remaining actions",
				start+1, end, len(actions)-end)
			return results, nil
		}
	}
	return results, nil
}

// runBatch executes one batch concurrently, bounded by MaxConcurrent.
// Unlike the parallel strategy, an infrastructure error from any member
// fails the whole batch.
func (c *Coordinator) runBatch(ctx context.Context, batch []execution.ToolCall) ([]execution.ToolResult, error) {
	results := make([]execution.ToolResult, len(batch))
	errs := make([]error, len(batch))
	sem := make(chan struct{}, c.opts.MaxConcurrent)

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = c.executeOneErr(ctx, batch[i])
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			return nil, errs[i]
		}
	}
	return results, nil
}

// compactResults keeps the filled entries in index order. Used when a run
// stops early and some actions were never attempted.
func compactResults(results []execution.ToolResult, filled []bool) []execution.ToolResult {
	out := make([]execution.ToolResult, 0, len(results))
	for i := range results {
		if filled[i] {
			out = append(out, results[i])
		}
	}
	return out
}
