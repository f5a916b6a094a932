// Package geminicompat implements the SDK-shape compat contract for Google
// Gemini, grounded on GeminiAdapter
// (agent/adapters/gemini_adapter.go): system instruction handled outside
// the message list, "model" role instead of "assistant", temperature
// clamped to [0,1], and a streaming iterator instead of SSE framing.
package geminicompat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Compat is the Gemini-family SDK-shape compat module.
type Compat struct {
	client *genai.Client
}

// New creates a Gemini-family compat module from an API key.
func New(ctx context.Context, apiKey string) (*Compat, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("geminicompat: creating client: %w", err)
	}
	return &Compat{client: client}, nil
}

// Close releases the underlying client.
func (c *Compat) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Compat) Family() string { return "gemini" }
func (c *Compat) Shape() compat.Shape { return compat.ShapeSDK }

// configuredModel builds a *genai.GenerativeModel from the normalized
// call, mirroring configureModel.
func (c *Compat) configuredModel(model string, settings types.Settings, messages []types.Message, tools []types.Tool) *genai.GenerativeModel {
	m := c.client.GenerativeModel(model)

	if system := systemPrompt(messages); system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	if settings.Temperature != nil {
		temp := float32(*settings.Temperature)
		if temp > 1.0 {
			temp = 1.0 // Gemini's supported range is 0-1
		}
		if temp < 0 {
			temp = 0
		}
		m.SetTemperature(temp)
	}
	if settings.MaxTokens != nil {
		m.SetMaxOutputTokens(int32(*settings.MaxTokens))
	}
	if settings.TopP != nil {
		m.SetTopP(float32(*settings.TopP))
	}
	if len(settings.Stop) > 0 {
		m.StopSequences = settings.Stop
	}
	if len(tools) > 0 {
		m.Tools = convertTools(tools)
	}

	return m
}

// systemPrompt extracts the first system message's text; Gemini carries
// the system prompt out-of-band via SystemInstruction rather than as a
// message in the conversation.
func systemPrompt(messages []types.Message) string {
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			return m.TextContent()
		}
	}
	return ""
}

// convertMessagesToParts turns non-system messages into genai.Part values,
// the way convertMessagesToParts does (Gemini has no
// message-array concept; everything becomes parts of one turn for a
// single-shot call).
func convertMessagesToParts(messages []types.Message) []genai.Part {
	var parts []genai.Part
	for _, m := range messages {
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			parts = append(parts, genai.Text(m.TextContent()))
		}
	}
	return parts
}

func convertTools(tools []types.Tool) []*genai.Tool {
	out := make([]*genai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name: compat.SanitizeToolName(t.Name),
				Description: t.Description,
				Parameters: schemaFromJSONSchema(t.ParametersJSONSchema),
			}},
		})
	}
	return out
}

// schemaFromJSONSchema does a best-effort conversion of a JSON-schema
// object into genai.Schema's narrower shape (object/string/number/bool/
// array properties, one level of nesting).
func schemaFromJSONSchema(raw map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	props, _ := raw["properties"].(map[string]interface{})
	if len(props) == 0 {
		return schema
	}
	schema.Properties = make(map[string]*genai.Schema, len(props))
	for name, v := range props {
		def, _ := v.(map[string]interface{})
		schema.Properties[name] = leafSchema(def)
	}
	if req, ok := raw["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func leafSchema(def map[string]interface{}) *genai.Schema {
	t, _ := def["type"].(string)
	s := &genai.Schema{Description: stringField(def, "description")}
	switch t {
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		s.Items = &genai.Schema{Type: genai.TypeString}
	default:
		s.Type = genai.TypeString
	}
	return s
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// CallSDK issues one synchronous generation call.
func (c *Compat) CallSDK(ctx context.Context, model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (types.Response, error) {
	m := c.configuredModel(model, settings, messages, tools)
	resp, err := m.GenerateContent(ctx, convertMessagesToParts(messages)...)
	if err != nil {
		return types.Response{}, fmt.Errorf("geminicompat: generate content: %w", err)
	}
	return c.ParseSDKResponse(resp, model)
}

// StreamSDK issues a streaming generation call, translating the SDK's
// pull-iterator into the push-channel shape the coordinator's aggregator
// expects from every compat module.
func (c *Compat) StreamSDK(ctx context.Context, model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (<-chan compat.ParsedChunk, <-chan error) {
	chunks := make(chan compat.ParsedChunk)
	errs := make(chan error, 1)

	m := c.configuredModel(model, settings, messages, tools)
	iter := m.GenerateContentStream(ctx, convertMessagesToParts(messages)...)

	go func() {
		defer close(chunks)
		defer close(errs)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				select {
				case errs <- fmt.Errorf("geminicompat: stream: %w", err):
				case <-ctx.Done():
				}
				return
			}
			parsed, err := c.ParseSDKChunk(resp)
			if err != nil {
				select {
				case errs <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case chunks <- parsed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, errs
}

// BuildSDKParams exposes the configured model as the opaque "params" value
// for callers that want to inspect/extend it ("buildSDKParams").
func (c *Compat) BuildSDKParams(model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (interface{}, error) {
	return c.configuredModel(model, settings, messages, tools), nil
}

// ParseSDKResponse converts a *genai.GenerateContentResponse into a
// normalized Response.
func (c *Compat) ParseSDKResponse(raw interface{}, model string) (types.Response, error) {
	resp, ok := raw.(*genai.GenerateContentResponse)
	if !ok {
		return types.Response{}, fmt.Errorf("geminicompat: ParseSDKResponse: unexpected type %T", raw)
	}

	out := types.Response{Provider: c.Family(), Model: model, Role: types.RoleAssistant}
	if len(resp.Candidates) == 0 {
		return out, nil
	}

	candidate := resp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text += string(p)
		case genai.FunctionCall:
			args, _ := json.Marshal(p.Args)
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				Name: compat.SanitizeToolName(p.Name),
				Arguments: string(args),
			})
		}
	}
	if text != "" {
		out.Content = []types.ContentPart{types.Text(text)}
	}
	if candidate.FinishReason != genai.FinishReasonUnspecified {
		out.FinishReason = candidate.FinishReason.String()
	}
	if resp.UsageMetadata != nil {
		out.Usage = &types.TokenUsage{
			PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens: int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// ParseSDKChunk converts one streamed *genai.GenerateContentResponse chunk
// into the normalized ParsedChunk shape.
func (c *Compat) ParseSDKChunk(raw interface{}) (compat.ParsedChunk, error) {
	resp, ok := raw.(*genai.GenerateContentResponse)
	if !ok {
		return compat.ParsedChunk{}, fmt.Errorf("geminicompat: ParseSDKChunk: unexpected type %T", raw)
	}

	var out compat.ParsedChunk
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				out.Text += string(p)
			case genai.FunctionCall:
				args, _ := json.Marshal(p.Args)
				out.ToolEvents = append(out.ToolEvents,
					types.ToolEvent(types.ToolCallEvent{Type: types.ToolCallStart, CallID: p.Name, Name: compat.SanitizeToolName(p.Name)}),
					types.ToolEvent(types.ToolCallEvent{Type: types.ToolCallEnd, CallID: p.Name, Name: compat.SanitizeToolName(p.Name), Arguments: string(args)}),
				)
				out.FinishedWithToolCalls = true
			}
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = &types.TokenUsage{
			PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens: int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

var _ compat.SDKCompat = (*Compat)(nil)
