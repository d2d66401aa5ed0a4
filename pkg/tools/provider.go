package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"agentcore/pkg/agenterrors"
	"agentcore/pkg/execution"
	"agentcore/pkg/logx"
)

// Route identifies which executor backend served a tool call.
type Route string

const (
	// RouteSandbox means the call ran through the sandboxed executor.
	RouteSandbox Route = "sandbox"
	// RouteLocal means the call ran directly on the host executor.
	RouteLocal Route = "local"
)

// routingTable is an immutable snapshot of the sandbox allow-list. Swapping
// in a new table is a single pointer store, so in-flight calls always see a
// complete table, never a partial mutation.
type routingTable struct {
	sandboxed map[string]struct{}
}

func newRoutingTable(names []string) *routingTable {
	t := &routingTable{sandboxed: make(map[string]struct{}, len(names))}
	for _, name := range names {
		t.sandboxed[NormalizeToolName(name)] = struct{}{}
	}
	return t
}

func (t *routingTable) isSandboxed(name string) bool {
	_, ok := t.sandboxed[NormalizeToolName(name)]
	return ok
}

// NormalizeToolName lower-cases a tool name and strips underscores so that
// allow-list entries match regardless of naming convention ("read_file",
// "ReadFile" and "readfile" all normalize to "readfile").
func NormalizeToolName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// Provider resolves and executes tools for one run. It holds an allow-list
// over the sealed registry, instantiates tools lazily, and routes each call
// to either the sandboxed or the local executor according to the routing
// table. Provider implements the execution backend consumed by the
// coordinator.
type Provider struct {
	localCtx   AgentContext
	sandboxCtx AgentContext
	tools      map[string]Tool
	allowSet   map[string]struct{}
	routing    atomic.Pointer[routingTable]
	logger     *logx.Logger
	mu         sync.Mutex
}

// NewProvider creates a tool provider scoped to allowedTools. The registry is
// sealed on first provider construction. sandboxTools selects which allowed
// tools run through sandboxCtx's executor; when sandboxCtx has no executor,
// every call falls back to localCtx and is reported as local.
func NewProvider(localCtx, sandboxCtx AgentContext, allowedTools, sandboxTools []string) (*Provider, error) {
	Seal()

	if localCtx.Executor == nil {
		return nil, fmt.Errorf("provider requires a local executor")
	}
	if len(allowedTools) == 0 {
		allowedTools = DefaultTools
	}

	allowSet := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		if _, ok := lookup(name); !ok {
			return nil, fmt.Errorf("unknown tool in allow-list: %q", name)
		}
		allowSet[name] = struct{}{}
	}

	p := &Provider{
		localCtx:   localCtx,
		sandboxCtx: sandboxCtx,
		tools:      make(map[string]Tool),
		allowSet:   allowSet,
		logger:     logx.NewLogger("tools"),
	}
	p.routing.Store(newRoutingTable(sandboxTools))
	return p, nil
}

// SwapSandboxTools atomically replaces the sandbox routing table. Cached tool
// instances are dropped so the next call re-binds each tool to the executor
// its new route selects.
func (p *Provider) SwapSandboxTools(sandboxTools []string) {
	p.routing.Store(newRoutingTable(sandboxTools))

	p.mu.Lock()
	p.tools = make(map[string]Tool)
	p.mu.Unlock()
}

// RouteOf reports which backend a tool call with this name would use.
func (p *Provider) RouteOf(name string) Route {
	if p.sandboxCtx.Executor == nil {
		return RouteLocal
	}
	if p.routing.Load().isSandboxed(name) {
		return RouteSandbox
	}
	return RouteLocal
}

// contextFor picks the agent context matching the tool's route.
func (p *Provider) contextFor(name string) AgentContext {
	if p.RouteOf(name) == RouteSandbox {
		return p.sandboxCtx
	}
	return p.localCtx
}

// Get returns the tool instance for name, creating it on first use.
func (p *Provider) Get(name string) (Tool, error) {
	if _, allowed := p.allowSet[name]; !allowed {
		return nil, fmt.Errorf("tool %q is not in the allowed set", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	desc, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	tool, err := desc.factory(p.contextFor(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create tool %q: %w", name, err)
	}

	// Cache the instance
	p.tools[name] = tool
	return tool, nil
}

// Must is like Get but panics on error. Use for tools that must exist.
func (p *Provider) Must(name string) Tool {
	tool, err := p.Get(name)
	if err != nil {
		panic(err)
	}
	return tool
}

// List returns metadata for all allowed tools, sorted by name.
func (p *Provider) List() []ToolMeta {
	result := make([]ToolMeta, 0, len(p.allowSet))
	for _, meta := range ListTools() {
		if _, ok := p.allowSet[meta.Name]; ok {
			result = append(result, meta)
		}
	}
	return result
}

// Definitions returns the model-facing schemas for all allowed tools.
func (p *Provider) Definitions() []ToolDefinition {
	metas := p.List()
	defs := make([]ToolDefinition, 0, len(metas))
	for i := range metas {
		defs = append(defs, ToolDefinition{
			Name:        metas[i].Name,
			Description: metas[i].Description,
			InputSchema: metas[i].InputSchema,
		})
	}
	return defs
}

// GenerateToolDocumentation renders markdown documentation for the allowed
// tools, for inclusion in the system prompt.
func (p *Provider) GenerateToolDocumentation() string {
	names := make([]string, 0, len(p.allowSet))
	for name := range p.allowSet {
		names = append(names, name)
	}
	sort.Strings(names)

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for _, name := range names {
		tool, err := p.Get(name)
		if err != nil {
			continue
		}
		doc.WriteString(tool.PromptDocumentation())
		doc.WriteString("\n")
	}
	return doc.String()
}

// infraRetryable marks the error kinds that indicate a backend fault rather
// than a tool-domain outcome. Only these propagate as errors from Execute;
// everything else becomes a failed result the model can react to.
//
//nolint:gochecknoglobals // Lookup table for Execute's error split
var infraRetryable = map[agenterrors.Kind]bool{
	agenterrors.KindNetwork:       true,
	agenterrors.KindTimeout:       true,
	agenterrors.KindRateLimit:     true,
	agenterrors.KindSystemFailure: true,
}

// Execute runs one tool call and returns its result. The returned error is
// reserved for infrastructure faults (cancellation, executor/transport
// failures) that the retry policy may retry; a tool that ran and produced a
// bad outcome yields a result with Success=false and a nil error. Each call
// logs whether it was served by the sandboxed or the local backend.
func (p *Provider) Execute(ctx context.Context, call execution.ToolCall) (execution.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return execution.ToolResult{}, agenterrors.Wrap(agenterrors.Classify(err), err, fmt.Sprintf("tool %s aborted before start", call.Name))
	}

	tool, err := p.Get(call.Name)
	if err != nil {
		// An unknown or uninstantiable tool is the model's problem to route
		// around, not a transport fault worth retrying.
		return execution.FailureResult(call.ID, err.Error()), nil
	}

	route := p.RouteOf(call.Name)
	p.logger.Debug("🔀 %s routed via %s backend (call %s)", call.Name, route, call.ID)

	res, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return execution.ToolResult{}, agenterrors.Wrap(agenterrors.Classify(ctxErr), err, fmt.Sprintf("tool %s aborted", call.Name))
		}
		var classified *agenterrors.Error
		if errors.As(err, &classified) && infraRetryable[classified.Kind] {
			return execution.ToolResult{}, err
		}
		return execution.FailureResult(call.ID, err.Error()), nil
	}

	if res == nil {
		return execution.SuccessResult(call.ID, ""), nil
	}
	if res.Failed {
		failed := execution.FailureResult(call.ID, res.Error)
		failed.Content = res.Content
		return failed, nil
	}
	return execution.SuccessResult(call.ID, res.Content), nil
}
