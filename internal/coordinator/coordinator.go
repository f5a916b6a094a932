// Package coordinator executes one CallSpec end-to-end:
// tool resolution, the bounded tool-call execution loop, the streaming
// aggregator, and the retry/fallback wrapper around provider calls.
// Grounded on Builder.askWithToolExecution/executeWithRetry
// (agent/builder_execution.go) generalized from one SDK-bound Builder to
// many compat-module-driven providers, and on
// agent/multiprovider_fallback.go's circuit-breaker fallback pattern.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/mcp"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/registry"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/tools"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorctx"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
)

// Coordinator is the per-process, reusable executor of CallSpecs; one
// instance is shared across requests (it holds no per-call state).
type Coordinator struct {
	Registry *registry.Registry
	Log logging.Logger
	LLMLog logging.Logger
	Vector *vectorctx.Injector
	Health *Health
	Retry RetryConfig

	transport *httpTransport
}

// New creates a Coordinator backed by reg for tool/provider/vector-store
// lookups.
func New(reg *registry.Registry, log, llmLog logging.Logger, vector *vectorctx.Injector) *Coordinator {
	if log == nil {
		log = logging.NoopLogger{}
	}
	if llmLog == nil {
		llmLog = logging.NoopLogger{}
	}
	return &Coordinator{
		Registry: reg,
		Log: log,
		LLMLog: llmLog,
		Vector: vector,
		Health: NewHealth(3, 0),
		Retry: DefaultRetryConfig(),
		transport: newHTTPTransport(llmLog),
	}
}

// Close releases pooled resources ("close": tool coordinator,
// MCP connections). The registry owns the lazily-cached MCP connections;
// Coordinator itself holds no pooled state beyond the shared HTTP client.
func (c *Coordinator) Close() error { return nil }

// toolExecutor resolves and runs one tool call by its original
// (pre-sanitization) name.
type toolExecutor func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// resolved bundles everything the tool loop needs after collectTools.
type resolved struct {
	Tools []types.Tool
	Alias *tools.AliasMap
	Executors map[string]toolExecutor
}

// resolveTools implements collectTools: concatenates inline,
// function, MCP, vector-retrieved, and synthetic vector_search tools, and
// builds the matching executor table keyed by original tool name. Inline
// tool declarations have no executor: a call against one fails with
// "no handler registered", surfaced as a per-tool tool_execution_failed
// result rather than aborting the loop.
func (c *Coordinator) resolveTools(ctx context.Context, spec types.CallSpec) (resolved, error) {
	executors := make(map[string]toolExecutor)

	for _, name := range spec.FunctionToolNames {
		name := name
		executors[name] = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			h, err := c.Registry.GetTool(name)
			if err != nil {
				return nil, err
			}
			return h.Execute(ctx, args)
		}
	}

	resolveMCP := func(ctx context.Context, serverID string) ([]types.Tool, error) {
		inst, err := c.Registry.GetMCPServer(serverID)
		if err != nil {
			return nil, err
		}
		server, ok := inst.(*mcp.Server)
		if !ok {
			return nil, fmt.Errorf("coordinator: mcp server %q has an unexpected driver type", serverID)
		}
		toolList, err := server.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range toolList {
			t := t
			executors[t.Name] = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				inst, err := c.Registry.GetMCPServer(serverID)
				if err != nil {
					return nil, err
				}
				return inst.(*mcp.Server).CallTool(ctx, t.Name, args)
			}
		}
		return toolList, nil
	}

	vectorRetrieved, err := c.resolveVectorTools(ctx, spec)
	if err != nil {
		return resolved{}, err
	}

	src := tools.Sources{
		Inline: spec.Tools,
		FunctionToolNames: spec.FunctionToolNames,
		ResolveFunction: c.Registry.ToolSpec,
		MCPServerIDs: spec.MCPServers,
		ResolveMCP: resolveMCP,
		VectorRetrieved: vectorRetrieved,
	}

	if spec.VectorContext != nil && (spec.VectorContext.Mode == types.VectorModeTool || spec.VectorContext.Mode == types.VectorModeBoth) {
		vsTool, alias, err := tools.BuildVectorSearchTool(*spec.VectorContext)
		if err != nil {
			return resolved{}, err
		}
		src.VectorSearchTool = &vsTool
		executors[vsTool.Name] = (&vectorctx.SearchToolHandler{
			Injector: c.Vector,
			Config: *spec.VectorContext,
			ParamAlias: alias,
		}).Execute
	}

	collected, err := tools.Collect(ctx, src)
	if err != nil {
		return resolved{}, err
	}
	return resolved{Tools: collected.Tools, Alias: collected.Alias, Executors: executors}, nil
}

// resolveVectorTools implements the "vector-retrieved tools" source of
// collectTools: when vectorPriority is supplied, a query is derivable,
// and the call's vectorContext names an embedding provider, each store in
// priority order is searched for a declared tool catalog (collection
// "tools" unless vectorContext.collection overrides it); hits whose
// metadata carries name/description/parametersJsonSchema become
// additional tool declarations. These carry no executor: they describe
// capabilities surfaced by retrieval, not invocations routed server-side.
func (c *Coordinator) resolveVectorTools(ctx context.Context, spec types.CallSpec) ([]types.Tool, error) {
	if len(spec.VectorPriority) == 0 || c.Vector == nil {
		return nil, nil
	}
	query := tools.DeriveVectorQuery("", spec.Messages)
	if query == "" {
		return nil, nil
	}
	if spec.VectorContext == nil || len(spec.VectorContext.EmbeddingPriority) == 0 {
		return nil, nil
	}

	collection := spec.VectorContext.Collection
	if collection == "" {
		collection = "tools"
	}
	cfg := types.VectorContextConfig{
		Stores: spec.VectorPriority,
		TopK: spec.VectorContext.TopK,
		ScoreThreshold: spec.VectorContext.ScoreThreshold,
		Collection: collection,
		EmbeddingPriority: spec.VectorContext.EmbeddingPriority,
	}

	docs, err := c.Vector.Retrieve(ctx, cfg, query)
	if err != nil {
		c.Log.Debug(ctx, "vector-retrieved tool lookup failed, skipping", logging.F("error", err.Error()))
		return nil, nil
	}
	return toolsFromDocuments(docs), nil
}

func toolsFromDocuments(docs []vectorstore.Document) []types.Tool {
	var out []types.Tool
	for _, d := range docs {
		name, _ := d.Metadata["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := d.Metadata["description"].(string)
		schema, _ := d.Metadata["parametersJsonSchema"].(map[string]interface{})
		out = append(out, types.Tool{Name: name, Description: desc, ParametersJSONSchema: schema})
	}
	return out
}

func toolChoiceFromSpec(spec types.CallSpec) types.ToolChoice {
	if spec.Metadata == nil {
		return nil
	}
	return spec.Metadata["toolChoice"]
}

// stringifyToolResult implements step 4: a raw string result
// passes through unchanged, anything else is JSON-encoded.
func stringifyToolResult(result interface{}) string {
	if s, ok := result.(string); ok {
		return s
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(raw)
}

// validateResponse applies the shape guard of : a response
// reporting a non-assistant role fails the call as malformed before tool
// calls are inspected.
func validateResponse(resp types.Response) error {
	if resp.Role != "" && resp.Role != types.RoleAssistant {
		return errs.MalformedResponse(fmt.Sprintf("expected assistant role, got %q", resp.Role))
	}
	return nil
}

// compatFor resolves the live provider config and compat module for a
// provider target.
func (c *Coordinator) compatFor(target types.ProviderTarget) (registry.ProviderConfig, interface{}, error) {
	provider, err := c.Registry.GetProvider(target.Provider)
	if err != nil {
		return registry.ProviderConfig{}, nil, err
	}
	mod, err := c.Registry.GetCompatModule(provider.Family)
	if err != nil {
		return registry.ProviderConfig{}, nil, err
	}
	return provider, mod, nil
}

// callProviderOnce performs exactly one non-streaming provider call
// through whichever compat shape the family implements.
func (c *Coordinator) callProviderOnce(ctx context.Context, target types.ProviderTarget, settings types.Settings, messages []types.Message, toolDecls []types.Tool, toolChoice types.ToolChoice) (types.Response, error) {
	provider, mod, err := c.compatFor(target)
	if err != nil {
		return types.Response{}, err
	}

	switch m := mod.(type) {
	case compat.HTTPCompat:
		payload, err := m.BuildPayload(target.Model, settings, messages, toolDecls, toolChoice)
		if err != nil {
			return types.Response{}, err
		}
		raw, err := c.transport.Do(ctx, provider, m, payload)
		if err != nil {
			return types.Response{}, err
		}
		resp, err := m.ParseResponse(raw, target.Model)
		if err != nil {
			return types.Response{}, errs.MalformedResponse(err.Error())
		}
		if err := validateResponse(resp); err != nil {
			return types.Response{}, err
		}
		return resp, nil

	case compat.SDKCompat:
		resp, err := m.CallSDK(ctx, target.Model, settings, messages, toolDecls, toolChoice)
		if err != nil {
			return types.Response{}, err
		}
		if err := validateResponse(resp); err != nil {
			return types.Response{}, err
		}
		return resp, nil

	default:
		return types.Response{}, fmt.Errorf("coordinator: compat module for family %q implements neither shape", provider.Family)
	}
}

// callWithFallback iterates spec.LLMPriority in order, skipping providers
// whose circuit breaker is open, retrying transient failures within a
// provider, and falling back to the next provider on exhaustion (the
// "Retry/backoff" and "Provider health/fallback bookkeeping" supplemented
// features).
func (c *Coordinator) callWithFallback(ctx context.Context, spec types.CallSpec, messages []types.Message, toolDecls []types.Tool) (types.Response, types.ProviderTarget, error) {
	toolChoice := toolChoiceFromSpec(spec)

	var lastErr error
	attempted := 0
	for _, target := range spec.LLMPriority {
		if !c.Health.Allow(target.Provider) {
			c.Log.Debug(ctx, "skipping provider with open circuit breaker", logging.F("provider", target.Provider))
			continue
		}
		attempted++

		var resp types.Response
		err := withRetry(ctx, c.Retry, isRetryableProviderError, func(ctx context.Context) error {
			r, callErr := c.callProviderOnce(ctx, target, spec.Settings, messages, toolDecls, toolChoice)
			if callErr != nil {
				return callErr
			}
			resp = r
			return nil
		})

		if err == nil {
			c.Health.RecordSuccess(target.Provider)
			return resp, target, nil
		}

		c.Health.RecordFailure(target.Provider)
		c.Log.Warn(ctx, "provider call failed, trying fallback",
			logging.F("provider", target.Provider), logging.F("error", err.Error()))
		lastErr = err
	}

	if attempted == 0 {
		return types.Response{}, types.ProviderTarget{}, fmt.Errorf("coordinator: every configured provider has an open circuit breaker")
	}
	return types.Response{}, types.ProviderTarget{}, fmt.Errorf("coordinator: all providers failed: %w", lastErr)
}

// applyVectorContext implements : when vectorContext.mode is
// auto or both, retrieves and injects passages before the first provider
// call. Retrieval/embedding errors never abort the request (failure
// policy: messages left unchanged).
func (c *Coordinator) applyVectorContext(ctx context.Context, spec types.CallSpec) []types.Message {
	messages := spec.Messages
	if spec.VectorContext == nil || c.Vector == nil {
		return messages
	}
	cfg := *spec.VectorContext
	if cfg.Mode != types.VectorModeAuto && cfg.Mode != types.VectorModeBoth {
		return messages
	}

	query := cfg.OverrideEmbeddingQuery
	if query == "" {
		query = vectorctx.BuildQuery(messages, cfg.QueryConstruction)
	}
	if query == "" {
		return messages
	}

	docs, err := c.Vector.Retrieve(ctx, cfg, query)
	if err != nil {
		c.Log.Debug(ctx, "vector context retrieval failed, leaving messages unchanged", logging.F("error", err.Error()))
		return messages
	}
	if len(docs) == 0 {
		c.Log.Info(ctx, "vector context retrieval returned no results, leaving messages unchanged", logging.F("resultsInjected", 0))
	}
	return vectorctx.Inject(messages, cfg, docs)
}

// Run executes one call spec end-to-end.
func (c *Coordinator) Run(ctx context.Context, spec types.CallSpec) (types.Response, error) {
	if len(spec.LLMPriority) == 0 {
		return types.Response{}, errs.ValidationError("llmPriority must include at least one provider target")
	}

	messages := c.applyVectorContext(ctx, spec)

	res, err := c.resolveTools(ctx, spec)
	if err != nil {
		return types.Response{}, err
	}

	budget := types.NewToolCallBudget(types.NormalizeMaxToolIterations(spec.Runtime.MaxToolIterations))

	for {
		resp, _, err := c.callWithFallback(ctx, spec, messages, res.Tools)
		if err != nil {
			return types.Response{}, err
		}

		if len(resp.ToolCalls) == 0 {
			return resp, nil
		}

		messages = append(messages, types.Message{
			Role: types.RoleAssistant,
			Content: resp.Content,
			ToolCalls: resp.ToolCalls,
			Reasoning: resp.Reasoning,
		})

		for _, call := range resp.ToolCalls {
			messages = c.executeToolCall(ctx, res, budget, messages, call)
		}

		if spec.Runtime.ToolCountdownEnabled {
			messages = appendCountdown(messages, budget)
		}

		if spec.Runtime.ToolFinalPromptEnabled && budget.Exhausted() {
			messages = appendFinalPrompt(messages)
			final, _, err := c.callWithFallback(ctx, spec, messages, res.Tools)
			if err != nil {
				return types.Response{}, err
			}
			return final, nil
		}
	}
}

// executeToolCall implements one iteration of step 4: budget
// gating, dispatch via the resolved executor table, and appending the
// tool-role message carrying the result or error.
func (c *Coordinator) executeToolCall(ctx context.Context, res resolved, budget *types.ToolCallBudget, messages []types.Message, call types.ToolCall) []types.Message {
	original := res.Alias.Original(call.Name)

	if budget.Exhausted() {
		c.Log.Warn(ctx, "tool budget exhausted; skipping invocation", logging.F("tool", original))
		return append(messages, toolResultMessage(call, types.ToolResultPart(original, map[string]interface{}{"error": "tool_call_budget_exhausted"})))
	}
	if !budget.Consume() {
		c.Log.Warn(ctx, "tool budget consume blocked; skipping invocation", logging.F("tool", original))
		return append(messages, toolResultMessage(call, types.ToolResultPart(original, map[string]interface{}{"error": "tool_call_budget_exhausted"})))
	}

	executor, ok := res.Executors[original]
	if !ok {
		c.Log.Warn(ctx, "tool execution failed: no handler registered", logging.F("tool", original))
		return append(messages, toolResultMessage(call, types.ToolResultPart(original, map[string]interface{}{
			"error": "tool_execution_failed",
			"detail": fmt.Sprintf("no handler registered for tool %q", original),
		})))
	}

	var args map[string]interface{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			args = map[string]interface{}{}
		}
	}

	result, err := executor(ctx, args)
	if err != nil {
		c.Log.Warn(ctx, "tool execution failed", logging.F("tool", original), logging.F("error", err.Error()))
		return append(messages, toolResultMessage(call, types.ToolResultPart(original, map[string]interface{}{
			"error": "tool_execution_failed",
			"detail": err.Error(),
		})))
	}

	return append(messages, types.Message{
		Role: types.RoleTool,
		ToolCallID: call.ID,
		Content: []types.ContentPart{types.Text(stringifyToolResult(result))},
	})
}

func toolResultMessage(call types.ToolCall, part types.ContentPart) types.Message {
	return types.Message{Role: types.RoleTool, ToolCallID: call.ID, Content: []types.ContentPart{part}}
}

// appendCountdown implements step 5: records "Tool calls used N
// of M" on the last assistant message so the model sees its remaining
// budget.
func appendCountdown(messages []types.Message, budget *types.ToolCallBudget) []types.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant {
			used := budget.Initial - budget.Remaining
			text := fmt.Sprintf("Tool calls used %d of %d", used, budget.Initial)
			messages[i].Content = append(messages[i].Content, types.Text(text))
			return messages
		}
	}
	return messages
}

// appendFinalPrompt implements step 6: a terminal system hint
// that no further tools are available.
func appendFinalPrompt(messages []types.Message) []types.Message {
	return append(messages, types.Message{
		Role: types.RoleSystem,
		Content: []types.ContentPart{types.Text("No further tool calls are available; respond using only the information already gathered.")},
	})
}
