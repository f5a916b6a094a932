package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

// toolState accumulates one in-flight tool call's name and argument
// fragments across chunks ("toolStates: callId -> {name,
// argumentsBuffer, metadata}").
type toolState struct {
	name string
	args strings.Builder
	metadata map[string]interface{}
}

// RunStream implements : converts the provider's raw chunk
// stream into normalized StreamEvents, driving the same tool loop as Run
// without breaking the stream. The returned channel is closed once a
// DONE or error event has been sent.
func (c *Coordinator) RunStream(ctx context.Context, spec types.CallSpec) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent)
	go func() {
		defer close(out)

		if len(spec.LLMPriority) == 0 {
			out <- types.ErrorEvent("validation_error", "llmPriority must include at least one provider target")
			return
		}

		messages := c.applyVectorContext(ctx, spec)
		res, err := c.resolveTools(ctx, spec)
		if err != nil {
			out <- types.ErrorEvent("internal", err.Error())
			return
		}

		budget := types.NewToolCallBudget(types.NormalizeMaxToolIterations(spec.Runtime.MaxToolIterations))
		c.streamRound(ctx, spec, messages, res, budget, out)
	}()
	return out
}

// streamRound drives one provider stream to completion, executes any
// tool calls it ends with, and recurses with the extended message list
// ("Tool execution during streaming"). It returns once a DONE
// or error event has been emitted for this request.
func (c *Coordinator) streamRound(ctx context.Context, spec types.CallSpec, messages []types.Message, res resolved, budget *types.ToolCallBudget, out chan<- types.StreamEvent) {
	chunks, errCh, target, err := c.openStream(ctx, spec, messages, res.Tools)
	if err != nil {
		out <- types.ErrorEvent("internal", err.Error())
		return
	}

	var content, reasoning strings.Builder
	var usage *types.TokenUsage
	states := make(map[string]*toolState)
	var order []string
	finishedWithToolCalls := false
	emittedAny := false

	drain := func() {
		for range chunks {
		}
	}

loop:
	for {
		select {
		case <-ctx.Done():
			out <- types.ErrorEvent("timeout", ctx.Err().Error())
			return

		case chunkErr, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			out <- types.ErrorEvent("internal", chunkErr.Error())
			go drain()
			return

		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if chunk.Text != "" {
				content.WriteString(chunk.Text)
				out <- types.Delta(chunk.Text)
				emittedAny = true
			}
			for _, ev := range chunk.ToolEvents {
				applyToolEvent(states, &order, ev)
				out <- ev
				emittedAny = true
			}
			if chunk.Reasoning != "" {
				reasoning.WriteString(chunk.Reasoning)
				out <- types.ReasoningEvent(chunk.Reasoning)
				emittedAny = true
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.FinishedWithToolCalls {
				finishedWithToolCalls = true
				go drain()
				break loop
			}
		}
	}

	if !finishedWithToolCalls {
		resp := types.Response{
			Provider: target.Provider,
			Model: target.Model,
			Role: types.RoleAssistant,
			Content: []types.ContentPart{types.Text(content.String())},
			Reasoning: reasoning.String(),
			Usage: usage,
			FinishReason: "stop",
		}
		out <- types.DoneEvent(&resp)
		return
	}

	calls := buildToolCalls(states, order)
	messages = append(messages, types.Message{
		Role: types.RoleAssistant,
		Content: []types.ContentPart{types.Text(content.String())},
		ToolCalls: calls,
		Reasoning: reasoning.String(),
	})

	for _, call := range calls {
		messages = c.executeToolCall(ctx, res, budget, messages, call)
	}

	if spec.Runtime.ToolCountdownEnabled {
		messages = appendCountdown(messages, budget)
	}
	if spec.Runtime.ToolFinalPromptEnabled && budget.Exhausted() {
		messages = appendFinalPrompt(messages)
	}

	c.streamRound(ctx, spec, messages, res, budget, out)
}

// applyToolEvent updates a stream's toolStates per step 3,
// recording first-seen order so the terminal tool-call list preserves
// emission order.
func applyToolEvent(states map[string]*toolState, order *[]string, ev types.StreamEvent) {
	if ev.ToolEvent == nil {
		return
	}
	te := ev.ToolEvent
	callID := te.CallID
	if callID == "" {
		callID = "0"
	}

	st, ok := states[callID]
	if !ok {
		st = &toolState{}
		states[callID] = st
		*order = append(*order, callID)
	}
	if te.Name != "" {
		st.name = te.Name
	}
	if te.ArgumentsDelta != "" {
		st.args.WriteString(te.ArgumentsDelta)
	}
	if te.Arguments != "" {
		st.args.Reset()
		st.args.WriteString(te.Arguments)
	}
	if te.Metadata != nil {
		st.metadata = te.Metadata
	}
}

func buildToolCalls(states map[string]*toolState, order []string) []types.ToolCall {
	calls := make([]types.ToolCall, 0, len(order))
	for _, id := range order {
		st := states[id]
		name := st.name
		if name == "" {
			name = "unknown"
		}
		calls = append(calls, types.ToolCall{ID: id, Name: name, Arguments: st.args.String(), Metadata: st.metadata})
	}
	return calls
}

// openStream starts a provider stream, trying spec.LLMPriority in order
// and skipping circuit-broken providers, the same fallback applied to a
// non-streaming call's first attempt. Once a stream has started,
// subsequent failures are mid-stream errors, not fallback
// triggers: retrying a partially-consumed stream against another
// provider would duplicate already-emitted deltas.
func (c *Coordinator) openStream(ctx context.Context, spec types.CallSpec, messages []types.Message, toolDecls []types.Tool) (<-chan compat.ParsedChunk, <-chan error, types.ProviderTarget, error) {
	toolChoice := toolChoiceFromSpec(spec)

	var lastErr error
	attempted := 0
	for _, target := range spec.LLMPriority {
		if !c.Health.Allow(target.Provider) {
			continue
		}
		attempted++

		chunks, errCh, err := c.openProviderStream(ctx, target, spec.Settings, messages, toolDecls, toolChoice)
		if err != nil {
			c.Health.RecordFailure(target.Provider)
			lastErr = err
			continue
		}
		return chunks, errCh, target, nil
	}

	if attempted == 0 {
		return nil, nil, types.ProviderTarget{}, fmt.Errorf("coordinator: every configured provider has an open circuit breaker")
	}
	return nil, nil, types.ProviderTarget{}, fmt.Errorf("coordinator: no provider accepted the stream request: %w", lastErr)
}

// openProviderStream opens one provider's stream, dispatching on compat
// shape.
func (c *Coordinator) openProviderStream(ctx context.Context, target types.ProviderTarget, settings types.Settings, messages []types.Message, toolDecls []types.Tool, toolChoice types.ToolChoice) (<-chan compat.ParsedChunk, <-chan error, error) {
	provider, mod, err := c.compatFor(target)
	if err != nil {
		return nil, nil, err
	}

	switch m := mod.(type) {
	case compat.HTTPCompat:
		payload, err := m.BuildPayload(target.Model, settings, messages, toolDecls, toolChoice)
		if err != nil {
			return nil, nil, err
		}
		body, err := c.transport.DoStream(ctx, provider, m, payload)
		if err != nil {
			return nil, nil, err
		}
		return scanSSE(body, m), nil, nil

	case compat.SDKCompat:
		chunks, errCh := m.StreamSDK(ctx, target.Model, settings, messages, toolDecls, toolChoice)
		return chunks, errCh, nil

	default:
		return nil, nil, fmt.Errorf("coordinator: compat module for family %q implements neither shape", provider.Family)
	}
}

// scanSSE reads "data: " framed lines from an HTTP-shape stream body,
// parsing each through the compat module and closing body once the
// provider's terminal "[DONE]" sentinel (or stream end) is reached.
func scanSSE(body io.ReadCloser, hc compat.HTTPCompat) <-chan compat.ParsedChunk {
	out := make(chan compat.ParsedChunk)
	go func() {
		defer close(out)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}
			chunk, err := hc.ParseStreamChunk([]byte(data))
			if err != nil {
				continue
			}
			out <- chunk
		}
	}()
	return out
}
