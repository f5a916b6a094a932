// Package openaicompat implements the HTTP-shape compat contract for the
// OpenAI chat-completions wire format and OpenAI-compatible endpoints
// (Azure OpenAI, Ollama's OpenAI front door, etc), grounded on
// OpenAIAdapter (agent/adapters/openai_adapter.go) but rebuilt around raw
// JSON payloads instead of the vendor SDK.
package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
	"github.com/tidwall/gjson"
)

// Compat is the OpenAI-family HTTP-shape compat module.
type Compat struct{}

// New creates an OpenAI-family compat module.
func New() *Compat { return &Compat{} }

func (c *Compat) Family() string { return "openai" }
func (c *Compat) Shape() compat.Shape { return compat.ShapeHTTP }
func (c *Compat) Endpoint() string { return "/chat/completions" }

// BuildPayload converts a normalized call into an OpenAI chat-completions
// request body ("buildPayload(model, settings, messages, tools,
// toolChoice) -> request").
func (c *Compat) BuildPayload(model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"model": model,
		"messages": c.convertMessages(messages),
	}

	if settings.Temperature != nil {
		payload["temperature"] = *settings.Temperature
	}
	if settings.TopP != nil {
		payload["top_p"] = *settings.TopP
	}
	if settings.MaxTokens != nil {
		payload["max_tokens"] = *settings.MaxTokens
	}
	if len(settings.Stop) > 0 {
		payload["stop"] = settings.Stop
	}

	if len(tools) > 0 {
		payload["tools"] = c.convertTools(tools)
	}
	if toolChoice != nil {
		payload["tool_choice"] = toolChoice
	}

	return payload, nil
}

func (c *Compat) convertMessages(messages []types.Message) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleTool:
			out = append(out, map[string]interface{}{
				"role": "tool",
				"tool_call_id": m.ToolCallID,
				"content": m.TextContent(),
			})
		case types.RoleAssistant:
			entry := map[string]interface{}{
				"role": "assistant",
				"content": m.TextContent(),
			}
			if len(m.ToolCalls) > 0 {
				entry["tool_calls"] = c.convertToolCallsOut(m.ToolCalls)
			}
			out = append(out, entry)
		default:
			out = append(out, map[string]interface{}{
				"role": string(m.Role),
				"content": c.convertContentParts(m.Content),
			})
		}
	}
	return out
}

// convertContentParts renders mixed text/image/document parts as an
// OpenAI multi-part user content array, falling back to a plain string
// when the message is text-only (matches typical chat-completions usage).
func (c *Compat) convertContentParts(parts []types.ContentPart) interface{} {
	onlyText := true
	for _, p := range parts {
		if p.Type != types.ContentText {
			onlyText = false
			break
		}
	}
	if onlyText {
		text := ""
		for _, p := range parts {
			text += p.Text
		}
		return text
	}

	out := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case types.ContentText:
			out = append(out, map[string]interface{}{"type": "text", "text": p.Text})
		case types.ContentImage:
			out = append(out, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]interface{}{"url": p.ImageURL},
			})
		case types.ContentDocument:
			out = append(out, c.convertDocumentPart(p))
		}
	}
	return out
}

// convertDocumentPart serializes a document content part: a base64 source
// becomes a file part with a data: URI carrying the mime type, a file_id
// source becomes a file-ID reference. Any other source (a URL included) is
// not rejected: it is replaced by a text part naming the unsupported
// source, and no error is returned.
func (c *Compat) convertDocumentPart(p types.ContentPart) map[string]interface{} {
	switch p.DocumentSource {
	case types.DocumentSourceBase64:
		return map[string]interface{}{
			"type": "file",
			"file": map[string]interface{}{
				"filename": p.Filename,
				"file_data": fmt.Sprintf("data:%s;base64,%s", p.MimeType, p.DocumentData),
			},
		}
	case types.DocumentSourceFileID:
		return map[string]interface{}{
			"type": "file",
			"file": map[string]interface{}{"file_id": p.DocumentData},
		}
	default:
		return map[string]interface{}{
			"type": "text",
			"text": fmt.Sprintf("[unsupported document source %q for openai chat-completions uploads]", p.DocumentSource),
		}
	}
}

func (c *Compat) convertToolCallsOut(calls []types.ToolCall) []map[string]interface{} {
	out := make([]map[string]interface{}, len(calls))
	for i, tc := range calls {
		out[i] = map[string]interface{}{
			"id": tc.ID,
			"type": "function",
			"function": map[string]interface{}{
				"name": compat.SanitizeToolName(tc.Name),
				"arguments": tc.Arguments,
			},
		}
	}
	return out
}

func (c *Compat) convertTools(tools []types.Tool) []map[string]interface{} {
	out := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		out[i] = map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name": compat.SanitizeToolName(t.Name),
				"description": t.Description,
				"parameters": t.ParametersJSONSchema,
			},
		}
	}
	return out
}

// ParseResponse converts an OpenAI chat-completions response body into a
// normalized Response ("parseResponse(raw, model) -> Response").
func (c *Compat) ParseResponse(raw []byte, model string) (types.Response, error) {
	root := gjson.ParseBytes(raw)
	if !root.Get("choices.0").Exists() {
		return types.Response{Provider: c.Family(), Model: model, Role: types.RoleAssistant, FinishReason: ""}, nil
	}

	choice := root.Get("choices.0")
	message := choice.Get("message")

	resp := types.Response{
		Provider: c.Family(),
		Model: model,
		Role: types.RoleAssistant,
		FinishReason: choice.Get("finish_reason").String(),
	}

	if text := message.Get("content").String(); text != "" {
		resp.Content = []types.ContentPart{types.Text(text)}
	}

	for _, tc := range message.Get("tool_calls").Array() {
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID: tc.Get("id").String(),
			Name: tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
	}

	if usage := root.Get("usage"); usage.Exists() {
		resp.Usage = &types.TokenUsage{
			PromptTokens: int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens: int(usage.Get("total_tokens").Int()),
		}
	}

	var rawAny interface{}
	_ = json.Unmarshal(raw, &rawAny)
	resp.Raw = rawAny

	return resp, nil
}

// ParseStreamChunk parses a single `data: {...}` SSE payload from OpenAI's
// streaming chat-completions endpoint ("the compat module
// returns {text?, toolEvents?, reasoning?, finishedWithToolCalls?,
// usage?}").
func (c *Compat) ParseStreamChunk(raw []byte) (compat.ParsedChunk, error) {
	root := gjson.ParseBytes(raw)
	delta := root.Get("choices.0.delta")

	out := compat.ParsedChunk{Text: delta.Get("content").String()}

	finishReason := root.Get("choices.0.finish_reason").String()
	out.FinishedWithToolCalls = finishReason == "tool_calls"

	for _, tc := range delta.Get("tool_calls").Array() {
		callID := tc.Get("id").String()
		idx := tc.Get("index").String()
		if callID == "" {
			callID = idx
		}
		if name := tc.Get("function.name").String(); name != "" {
			out.ToolEvents = append(out.ToolEvents, types.ToolEvent(types.ToolCallEvent{
				Type: types.ToolCallStart,
				CallID: callID,
				Name: name,
			}))
		}
		if args := tc.Get("function.arguments").String(); args != "" {
			out.ToolEvents = append(out.ToolEvents, types.ToolEvent(types.ToolCallEvent{
				Type: types.ToolCallArgumentsDelta,
				CallID: callID,
				ArgumentsDelta: args,
			}))
		}
	}

	if usage := root.Get("usage"); usage.Exists() {
		out.Usage = &types.TokenUsage{
			PromptTokens: int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens: int(usage.Get("total_tokens").Int()),
		}
	}

	return out, nil
}

// GetStreamingFlags reports chat-completions streaming behavior.
func (c *Compat) GetStreamingFlags() compat.StreamingFlags {
	return compat.StreamingFlags{EmitsUsageOnEveryChunk: false}
}

// ApplyProviderExtensions merges family-specific overrides (e.g. Azure
// deployment id, Ollama keep_alive) into an already-built payload.
func (c *Compat) ApplyProviderExtensions(payload map[string]interface{}, ext compat.ProviderExtensions) map[string]interface{} {
	for k, v := range ext {
		payload[k] = v
	}
	return payload
}

var _ compat.HTTPCompat = (*Compat)(nil)
