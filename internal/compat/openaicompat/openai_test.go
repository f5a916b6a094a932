package openaicompat

import (
	"testing"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

func TestBuildPayloadIncludesSettingsAndTools(t *testing.T) {
	c := New()
	temp := 0.5
	messages := []types.Message{{Role: types.RoleUser, Content: []types.ContentPart{types.Text("hi")}}}
	tools := []types.Tool{{Name: "my tool", Description: "does a thing", ParametersJSONSchema: map[string]interface{}{"type": "object"}}}

	payload, err := c.BuildPayload("gpt-4o", types.Settings{Temperature: &temp}, messages, tools, "auto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["model"] != "gpt-4o" {
		t.Fatalf("unexpected model: %v", payload["model"])
	}
	if payload["temperature"] != 0.5 {
		t.Fatalf("unexpected temperature: %v", payload["temperature"])
	}
	toolsOut := payload["tools"].([]map[string]interface{})
	fn := toolsOut[0]["function"].(map[string]interface{})
	if fn["name"] != "my_tool" {
		t.Fatalf("expected tool name sanitized, got %v", fn["name"])
	}
	if payload["tool_choice"] != "auto" {
		t.Fatalf("expected tool_choice passed through, got %v", payload["tool_choice"])
	}
}

func TestConvertMessagesToolRoleCarriesCallID(t *testing.T) {
	c := New()
	messages := []types.Message{
		{Role: types.RoleTool, ToolCallID: "call-1", Content: []types.ContentPart{types.Text("result")}},
	}
	out := c.convertMessages(messages)
	if out[0]["tool_call_id"] != "call-1" || out[0]["content"] != "result" {
		t.Fatalf("unexpected tool message conversion: %+v", out[0])
	}
}

func TestConvertMessagesAssistantWithToolCalls(t *testing.T) {
	c := New()
	messages := []types.Message{
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "1", Name: "weird name!", Arguments: "{}"}}},
	}
	out := c.convertMessages(messages)
	calls := out[0]["tool_calls"].([]map[string]interface{})
	fn := calls[0]["function"].(map[string]interface{})
	if fn["name"] != "weird_name_" {
		t.Fatalf("expected sanitized tool call name, got %v", fn["name"])
	}
}

func TestParseResponseExtractsContentToolCallsAndUsage(t *testing.T) {
	c := New()
	raw := []byte(`{
		"choices": [{
			"finish_reason": "tool_calls",
			"message": {
				"content": "hello",
				"tool_calls": [{"id": "c1", "function": {"name": "search", "arguments": "{\"q\":1}"}}]
			}
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)
	resp, err := c.ParseResponse(raw, "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("unexpected finish reason: %q", resp.FinishReason)
	}
	if resp.Content[0].Text != "hello" {
		t.Fatalf("unexpected content: %+v", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestParseResponseHandlesMissingChoices(t *testing.T) {
	c := New()
	resp, err := c.ParseResponse([]byte(`{}`), "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "openai" || len(resp.Content) != 0 {
		t.Fatalf("unexpected response for an empty payload: %+v", resp)
	}
}

func TestParseStreamChunkTextDelta(t *testing.T) {
	c := New()
	chunk, err := c.ParseStreamChunk([]byte(`{"choices":[{"delta":{"content":"hi"}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.Text != "hi" {
		t.Fatalf("unexpected text: %q", chunk.Text)
	}
}

func TestParseStreamChunkToolCallEvents(t *testing.T) {
	c := New()
	raw := []byte(`{"choices":[{"finish_reason":"tool_calls","delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`)
	chunk, err := c.ParseStreamChunk(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !chunk.FinishedWithToolCalls {
		t.Fatal("expected FinishedWithToolCalls to be true")
	}
	if len(chunk.ToolEvents) != 2 {
		t.Fatalf("expected a start and an arguments-delta event, got %d", len(chunk.ToolEvents))
	}
}

func TestApplyProviderExtensionsMergesIntoPayload(t *testing.T) {
	c := New()
	payload := map[string]interface{}{"model": "gpt-4o"}
	out := c.ApplyProviderExtensions(payload, map[string]interface{}{"keep_alive": "5m"})
	if out["keep_alive"] != "5m" {
		t.Fatalf("expected extension merged, got %+v", out)
	}
}
