// Package engine drives the agent loop. Each step sends the conversation
// to the model, hands the requested actions to the coordinator, feeds the
// results back, and repeats until the model passes the completion check or
// a budget runs out. The loop goroutine is the only writer of the
// Execution record: action goroutines report through the Observer and
// never touch it.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentcore/pkg/agenterrors"
	"agentcore/pkg/config"
	"agentcore/pkg/contextmgr"
	"agentcore/pkg/coordinator"
	"agentcore/pkg/execution"
	"agentcore/pkg/llm"
	"agentcore/pkg/logx"
	"agentcore/pkg/resilience/retry"
	"agentcore/pkg/tools"
	"agentcore/pkg/utils"
)

// maxRepromptRounds bounds synthetic re-prompts (nudges and rejected
// completion claims) within one thinking phase. Exhausting it is a model
// failure, not a transport error.
const maxRepromptRounds = 3

// Synthetic user messages injected during the thinking phase. The verb is
// the configured completion marker name.
const (
	taskIncompleteFmt = "Task incomplete: the completion check rejected this claim. Continue working and call %s again once the task is actually finished."
	nudgeFmt          = "Your response requested no tools. Use the available tools to make progress, or call %s with a summary if the task is finished."
)

// defaultSystemPrompt is used when the caller does not set one. Tool
// schemas travel separately on every request.
const defaultSystemPrompt = `You are an autonomous agent completing a task with the tools provided.

Work in small steps: request the tool calls you need, read their results, and keep going until the task is done. When everything is finished and verified, call task_done with a summary of what was accomplished. Do not call task_done before the work is complete.`

// Backend is the execution side of the engine: it runs actions and
// describes the tools available to the model. *tools.Provider satisfies
// it.
type Backend interface {
	coordinator.Backend

	// Definitions returns the tool schemas advertised to the model.
	Definitions() []tools.ToolDefinition
}

// CompletionPredicate is the second phase of completion detection. The
// marker call only claims the task is done; the predicate decides whether
// to believe it. Returning false turns the claim into a synthetic
// re-prompt.
type CompletionPredicate func(resp llm.CompletionResponse) bool

// Precondition gates each step before it starts. Returning false skips
// the step; the run continues with the next one.
type Precondition func() bool

// Engine runs one task to completion against a model and an execution
// backend. Model-call retry and per-request timeouts belong to the client
// middleware chain (pkg/llm/factory); the engine owns the step state
// machine, step and execution deadlines, and step-level re-queues.
//
// Configure the setters before the first Run. Runs do not mutate the
// Engine, so one Engine may serve successive executions.
type Engine struct {
	client       llm.LLMClient
	backend      Backend
	observer     Observer
	predicate    CompletionPredicate
	precondition Precondition
	logger       *logx.Logger
	systemPrompt string
	markerName   string
	cfg          config.AgentConfig
}

// New creates an engine for the given model client, execution backend,
// and agent configuration.
func New(client llm.LLMClient, backend Backend, cfg config.AgentConfig) *Engine {
	return &Engine{
		client:       client,
		backend:      backend,
		observer:     NopObserver{},
		logger:       logx.NewLogger("engine"),
		systemPrompt: defaultSystemPrompt,
		markerName:   tools.ToolTaskDone,
		cfg:          cfg,
	}
}

// SetObserver attaches a lifecycle observer. Nil resets to the nop
// observer.
func (e *Engine) SetObserver(obs Observer) {
	if obs == nil {
		obs = NopObserver{}
	}
	e.observer = obs
}

// SetCompletionPredicate replaces the default completion check, which
// accepts a marker call carrying a non-empty summary.
func (e *Engine) SetCompletionPredicate(p CompletionPredicate) {
	e.predicate = p
}

// SetPrecondition installs an optional per-step gate.
func (e *Engine) SetPrecondition(p Precondition) {
	e.precondition = p
}

// SetSystemPrompt replaces the default system prompt.
func (e *Engine) SetSystemPrompt(prompt string) {
	if strings.TrimSpace(prompt) != "" {
		e.systemPrompt = prompt
	}
}

// SetCompletionMarker renames the completion-marker tool. Callers that
// override it usually supply a matching system prompt.
func (e *Engine) SetCompletionMarker(name string) {
	if strings.TrimSpace(name) != "" {
		e.markerName = name
	}
}

// Run executes the task and always returns a finalized Execution, never
// nil: on failure the record carries success=false and the failure reason
// as its final result.
func (e *Engine) Run(ctx context.Context, task string) *execution.Execution {
	exec := execution.NewExecution(task)

	if e.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
		defer cancel()
	}

	maxSteps := e.cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = config.DefaultMaxSteps
	}

	r := e.newRun(exec)
	r.cm.AddSystemMessage(e.systemPrompt)
	r.cm.AddUserMessage(task)

	e.logger.Info("🚦 Execution %s started: model=%s strategy=%s max_steps=%d",
		exec.ID, e.client.GetModelName(), r.strategy, maxSteps)
	e.observer.ExecutionStarted(exec)

	if !e.client.SupportsToolCalling() {
		msg := fmt.Sprintf("model %s does not support tool calling", e.client.GetModelName())
		exec.Fail(agenterrors.New(agenterrors.KindValidation, msg), msg)
		return e.finish(exec)
	}

	for {
		if err := ctx.Err(); err != nil {
			exec.Fail(agenterrors.From(err), fmt.Sprintf("execution aborted: %v", err))
			break
		}
		if exec.NextStepNumber() > maxSteps {
			e.logger.Warn("⚠️  Execution %s: %d-step budget exhausted", exec.ID, maxSteps)
			exec.Fail(
				agenterrors.Newf(agenterrors.KindModelFailure, "no completion signal within %d steps", maxSteps),
				fmt.Sprintf("step budget exhausted after %d steps", maxSteps))
			break
		}

		step := execution.NewStep(exec.NextStepNumber())
		if err := exec.AppendStep(step); err != nil {
			exec.Fail(
				agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step bookkeeping failed"),
				fmt.Sprintf("step bookkeeping failed: %v", err))
			break
		}

		done, stepErr := r.executeStep(ctx, step)
		if stepErr != nil {
			reason := stepErr.Message
			if reason == "" {
				reason = stepErr.Error()
			}
			exec.Fail(stepErr, fmt.Sprintf("step %d failed: %s", step.Number, reason))
			break
		}
		if done {
			exec.Finalize(execution.ExecutionCompleted, true, r.summary)
			break
		}
	}

	return e.finish(exec)
}

// finish closes out the execution record and emits the terminal
// notification. Run returns through here on every path.
func (e *Engine) finish(exec *execution.Execution) *execution.Execution {
	if !exec.State.IsTerminal() {
		msg := "execution loop exited without finalizing"
		exec.Fail(agenterrors.New(agenterrors.KindSystemFailure, msg), msg)
	}

	switch exec.State {
	case execution.ExecutionCompleted:
		e.logger.Info("✅ Execution %s completed in %.3fs: %d steps, %d tokens",
			exec.ID, exec.Duration().Seconds(), len(exec.Steps), exec.Usage.TotalTokens)
	case execution.ExecutionCancelled:
		e.logger.Warn("Execution %s cancelled after %.3fs: %s",
			exec.ID, exec.Duration().Seconds(), exec.FinalResult)
	default:
		e.logger.Error("❌ Execution %s failed after %.3fs: %s",
			exec.ID, exec.Duration().Seconds(), exec.FinalResult)
	}

	e.observer.ExecutionCompleted(exec)
	return exec
}

// selectStrategy resolves the coordination strategy: an explicit valid
// config choice wins; otherwise ParallelToolCalls picks between parallel
// and sequential.
func (e *Engine) selectStrategy() coordinator.Strategy {
	if e.cfg.Strategy != "" {
		s, err := coordinator.ParseStrategy(e.cfg.Strategy)
		if err == nil {
			return s
		}
		e.logger.Warn("Unknown strategy %q, falling back to the default", e.cfg.Strategy)
	}
	if e.cfg.ParallelToolCalls {
		return coordinator.Parallel
	}
	return coordinator.Sequential
}

// run carries the per-execution state: the conversation, the retry policy
// with its notification hook, and the usage accumulated by the step in
// flight.
type run struct {
	eng       *Engine
	exec      *execution.Execution
	cm        *contextmgr.ContextManager
	counter   *utils.TokenCounter
	policy    *retry.Policy
	defs      []tools.ToolDefinition
	strategy  coordinator.Strategy
	summary   string
	stepUsage execution.TokenUsage
}

func (e *Engine) newRun(exec *execution.Execution) *run {
	model := e.client.GetModelName()
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		counter = &utils.TokenCounter{}
	}

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts: e.cfg.Retry.MaxAttempts,
		BaseDelay:   e.cfg.Retry.BaseDelay,
		MaxDelay:    e.cfg.Retry.MaxDelay,
		Multiplier:  e.cfg.Retry.Multiplier,
		Jitter:      e.cfg.Retry.Jitter,
	}, nil)
	policy.OnRetry = func(label string, attempt int, delay time.Duration, cause error) {
		e.logger.Warn("🔄 Retry %d for %s in %s: %v", attempt, label, delay, cause)
		e.observer.RetryAttempted(label, attempt, delay, cause)
	}

	return &run{
		eng:      e,
		exec:     exec,
		cm:       contextmgr.NewContextManagerWithModel(model),
		counter:  counter,
		policy:   policy,
		defs:     e.backend.Definitions(),
		strategy: e.selectStrategy(),
	}
}

// executeStep drives one step to a terminal state, re-queuing it after a
// backoff while the error is retryable and attempts remain. Usage is
// accumulated onto the execution only after each finalization.
func (r *run) executeStep(ctx context.Context, step *execution.Step) (bool, *agenterrors.Error) {
	for {
		done, stepErr := r.attemptStep(ctx, step)
		r.exec.AddUsage(r.stepUsage)
		r.eng.observer.StepCompleted(r.exec.ID, step)

		if stepErr == nil {
			if step.State == execution.StepCompleted {
				r.eng.logger.Info("✅ Step %d completed in %.3fs: %d actions, %d results",
					step.Number, step.Duration.Seconds(), len(step.Actions), len(step.Results))
			}
			return done, nil
		}
		if !r.canRetryStep(ctx, step, stepErr) {
			return false, stepErr
		}

		attempt := step.Retries + 1
		delay := r.policy.CalculateDelay(attempt)
		r.eng.logger.Warn("🔄 Step %d failed (%s), re-queuing in %s: %v",
			step.Number, stepErr.Kind, delay, stepErr)
		r.eng.observer.RetryAttempted(fmt.Sprintf("step %d", step.Number), attempt, delay, stepErr)

		select {
		case <-ctx.Done():
			return false, agenterrors.From(ctx.Err())
		case <-time.After(delay):
		}
		if err := step.Requeue(); err != nil {
			return false, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step re-queue failed")
		}
	}
}

// canRetryStep gates the error-to-pending re-queue: the classified error
// must be retryable, attempts must remain, and the run context must still
// be alive.
func (r *run) canRetryStep(ctx context.Context, step *execution.Step, stepErr *agenterrors.Error) bool {
	if ctx.Err() != nil {
		return false
	}
	if !stepErr.IsRetryable() {
		return false
	}
	maxAttempts := r.policy.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return step.Retries+1 < maxAttempts
}

// attemptStep runs a single attempt of the step from pending to a
// terminal state.
func (r *run) attemptStep(ctx context.Context, step *execution.Step) (bool, *agenterrors.Error) {
	r.stepUsage = execution.TokenUsage{}

	if r.eng.precondition != nil && !r.eng.precondition() {
		if err := step.Skip(); err != nil {
			return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step skip failed"))
		}
		r.eng.logger.Info("Step %d skipped by precondition", step.Number)
		return false, nil
	}

	stepCtx := ctx
	if r.eng.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.eng.cfg.StepTimeout)
		defer cancel()
	}

	if err := step.Start(); err != nil {
		return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step start failed"))
	}
	r.eng.observer.StepStarted(r.exec.ID, step)
	r.eng.logger.Info("🧠 Step %d thinking (attempt %d)", step.Number, step.Retries+1)

	actions, done, thinkErr := r.think(stepCtx, step)
	if thinkErr != nil {
		return false, r.failStep(step, thinkErr)
	}
	step.Actions = actions

	if done {
		if err := step.Complete(); err != nil {
			return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step completion failed"))
		}
		return true, nil
	}

	if err := step.Transition(execution.StepCallingTool); err != nil {
		return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step transition failed"))
	}
	r.eng.logger.Info("🔀 Step %d dispatching %d actions (%s)", step.Number, len(actions), r.strategy)

	coord := coordinator.New(&observedBackend{
		backend:  r.eng.backend,
		observer: r.eng.observer,
		execID:   r.exec.ID,
		stepNum:  step.Number,
	}, r.policy, coordinator.Options{
		MaxConcurrent:   r.eng.cfg.MaxConcurrentActions,
		BatchSize:       r.eng.cfg.BatchSize,
		ContinueOnError: r.eng.cfg.ContinueOnError,
	})

	results, err := coord.Coordinate(stepCtx, actions, r.strategy)
	if err != nil {
		return false, r.failStep(step, agenterrors.From(err))
	}
	if err := step.SetResults(results); err != nil {
		return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "result bookkeeping failed"))
	}
	r.cm.AddToolResults(toLLMResults(results))

	if failed := step.FailedResults(); len(failed) > 0 {
		if err := step.Transition(execution.StepReflecting); err != nil {
			return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step transition failed"))
		}
		step.Reflection = buildReflection(step)
		r.cm.AddAssistantMessage(step.Reflection, nil)
		r.eng.logger.Warn("⚠️  Step %d: %d/%d actions failed", step.Number, len(failed), len(results))
	}

	if err := step.Complete(); err != nil {
		return false, r.failStep(step, agenterrors.Wrap(agenterrors.KindSystemFailure, err, "step completion failed"))
	}
	return false, nil
}

// think drives the model until it either requests executable actions or
// passes the completion check. Synthetic re-prompts keep the exchange
// inside the thinking state and are bounded by maxRepromptRounds.
func (r *run) think(ctx context.Context, step *execution.Step) ([]execution.ToolCall, bool, *agenterrors.Error) {
	reprompts := 0
	for {
		if err := r.cm.CompactIfNeeded(); err != nil {
			r.eng.logger.Warn("Context compaction failed: %v", err)
		}

		resp, err := r.complete(ctx)
		if err != nil {
			return nil, false, agenterrors.From(err)
		}
		r.recordUsage(resp)

		actions := toActions(resp.ToolCalls)
		r.cm.AddAssistantMessage(resp.Content, toLLMCalls(actions))
		step.Response = resp.Content

		if marker, ok := r.findMarker(actions); ok {
			if r.isTaskActuallyDone(resp, marker) {
				r.summary = markerSummary(marker, resp.Content)
				return actions, true, nil
			}
			if reprompts >= maxRepromptRounds {
				return nil, false, agenterrors.Newf(agenterrors.KindModelFailure,
					"completion check failed %d times in step %d", reprompts+1, step.Number)
			}
			reprompts++
			r.cm.AddUserMessage(fmt.Sprintf(taskIncompleteFmt, r.eng.markerName))
			r.eng.logger.Info("🧠 Step %d: completion claim rejected, re-prompting (%d/%d)",
				step.Number, reprompts, maxRepromptRounds)
			continue
		}

		if len(actions) == 0 {
			if reprompts >= maxRepromptRounds {
				return nil, false, agenterrors.Newf(agenterrors.KindModelFailure,
					"no actions and no completion signal after %d prompts in step %d", reprompts+1, step.Number)
			}
			reprompts++
			r.cm.AddUserMessage(fmt.Sprintf(nudgeFmt, r.eng.markerName))
			r.eng.logger.Info("🧠 Step %d: empty response, nudging (%d/%d)",
				step.Number, reprompts, maxRepromptRounds)
			continue
		}

		return actions, false, nil
	}
}

// complete sends the conversation to the model. Retry and the per-request
// deadline are the client middleware's job.
func (r *run) complete(ctx context.Context) (llm.CompletionResponse, error) {
	req := llm.CompletionRequest{
		Messages:    r.cm.ToCompletionMessages(),
		Tools:       r.defs,
		MaxTokens:   r.cm.GetMaxReplyTokens(),
		Temperature: llm.TemperatureDeterministic,
	}
	return r.eng.client.Complete(ctx, req)
}

// recordUsage accumulates the response's token usage into the step in
// flight, estimating with the token counter when the provider reports
// nothing. Called before the response is appended to the conversation so
// the prompt estimate reflects what was sent.
func (r *run) recordUsage(resp llm.CompletionResponse) {
	if resp.Usage != nil {
		r.stepUsage.Add(execution.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		})
		return
	}

	prompt := int64(r.cm.CountTokens())
	completion := int64(r.counter.CountTokens(resp.Content))
	r.stepUsage.Add(execution.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	})
}

// findMarker locates the completion-marker call among the requested
// actions.
func (r *run) findMarker(actions []execution.ToolCall) (execution.ToolCall, bool) {
	for i := range actions {
		if actions[i].Name == r.eng.markerName {
			return actions[i], true
		}
	}
	return execution.ToolCall{}, false
}

// isTaskActuallyDone is the second completion phase: the marker alone
// does not finish the run. A configured predicate sees the full response;
// the default accepts a marker that carries a non-empty summary.
func (r *run) isTaskActuallyDone(resp llm.CompletionResponse, marker execution.ToolCall) bool {
	if r.eng.predicate != nil {
		return r.eng.predicate(resp)
	}
	summary, ok := marker.Parameters["summary"].(string)
	return ok && strings.TrimSpace(summary) != ""
}

// failStep finalizes the step with the classified error on the unhandled
// failure path.
func (r *run) failStep(step *execution.Step, stepErr *agenterrors.Error) *agenterrors.Error {
	step.Fail(stepErr)
	r.eng.logger.Error("❌ Step %d failed: %v", step.Number, stepErr)
	return stepErr
}

// markerSummary extracts the completion summary used as the final result.
func markerSummary(marker execution.ToolCall, response string) string {
	if s, ok := marker.Parameters["summary"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if strings.TrimSpace(response) != "" {
		return strings.TrimSpace(response)
	}
	return "task completed"
}

// buildReflection renders the failed results as a short assistant note so
// the model sees what went wrong in plain text as well as in the raw tool
// results.
func buildReflection(step *execution.Step) string {
	failed := step.FailedResults()
	names := make(map[string]string, len(step.Actions))
	for i := range step.Actions {
		names[step.Actions[i].ID] = step.Actions[i].Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d actions failed:\n", len(failed), len(step.Results))
	for i := range failed {
		name := names[failed[i].CallID]
		if name == "" {
			name = failed[i].CallID
		}
		reason := failed[i].ErrorMessage
		if reason == "" {
			reason = failed[i].Content
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, truncateString(reason, maxReflectionReason))
	}
	b.WriteString("Address these failures before completing the task.")
	return b.String()
}

// maxReflectionReason caps per-failure detail in reflection notes.
const maxReflectionReason = 200

// truncateString truncates a string for summaries and logs.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// toActions converts the model's tool calls into execution actions,
// minting call ids where the provider left them empty.
func toActions(calls []llm.ToolCall) []execution.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	actions := make([]execution.ToolCall, 0, len(calls))
	for i := range calls {
		actions = append(actions, execution.NewToolCall(calls[i].ID, calls[i].Name, calls[i].Parameters))
	}
	return actions
}

// toLLMCalls mirrors actions back into the message shape so the recorded
// assistant message carries the same call ids the results will reference.
func toLLMCalls(actions []execution.ToolCall) []llm.ToolCall {
	if len(actions) == 0 {
		return nil
	}
	calls := make([]llm.ToolCall, 0, len(actions))
	for i := range actions {
		calls = append(calls, llm.ToolCall{
			ID:         actions[i].ID,
			Name:       actions[i].Name,
			Parameters: actions[i].Parameters,
		})
	}
	return calls
}

// toLLMResults converts coordinator results into the tool-result blocks
// fed back to the model.
func toLLMResults(results []execution.ToolResult) []llm.ToolResult {
	out := make([]llm.ToolResult, 0, len(results))
	for i := range results {
		content := results[i].Content
		if !results[i].Success && results[i].ErrorMessage != "" {
			content = results[i].ErrorMessage
		}
		out = append(out, llm.ToolResult{
			ToolCallID: results[i].CallID,
			Content:    content,
			IsError:    !results[i].Success,
		})
	}
	return out
}
