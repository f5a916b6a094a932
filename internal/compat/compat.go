// Package compat declares the provider compat contract of : each
// provider family exposes either the HTTP shape (raw JSON request/response,
// parsed by hand) or the SDK shape (calls through a vendor SDK client).
// Concrete families live in subpackages (openaicompat, geminicompat);
// the core depends only on these interfaces ("the core depends
// only on their operation contracts").
package compat

import (
	"context"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

// Shape identifies which of the two compat flavors a module implements.
type Shape int

const (
	ShapeHTTP Shape = iota
	ShapeSDK
)

// ParsedChunk is the normalized shape a streaming raw chunk is reduced
// to, before the coordinator's aggregator turns it into StreamEvents: a
// compat module returns {text?, toolEvents?, reasoning?,
// finishedWithToolCalls?, usage?}.
type ParsedChunk struct {
	Text string
	ToolEvents []types.StreamEvent
	Reasoning string
	FinishedWithToolCalls bool
	Usage *types.TokenUsage
}

// StreamingFlags reports how a family wants its stream consumed (e.g.
// whether tool-call boundaries always coincide with finish events).
type StreamingFlags struct {
	EmitsUsageOnEveryChunk bool
}

// ProviderExtensions carries opaque, family-specific request overrides
// that don't fit the normalized CallSpec/Settings shape (e.g. Azure
// deployment headers, Anthropic beta flags).
type ProviderExtensions map[string]interface{}

// Compat is the capability descriptor every compat module satisfies,
// regardless of shape.
type Compat interface {
	Family() string
	Shape() Shape
}

// HTTPCompat is the contract for chat-completion-style, request/response
// JSON providers (grounded on OpenAIAdapter message/tool
// conversion, reworked around raw payloads instead of the SDK types).
type HTTPCompat interface {
	Compat
	// Endpoint is the path suffix appended to the provider's configured
	// base URL (e.g. "/chat/completions"); the coordinator owns the actual
	// HTTP transport, compat modules only describe the wire shape.
	Endpoint() string
	BuildPayload(model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (map[string]interface{}, error)
	ParseResponse(raw []byte, model string) (types.Response, error)
	ParseStreamChunk(raw []byte) (ParsedChunk, error)
	GetStreamingFlags() StreamingFlags
	ApplyProviderExtensions(payload map[string]interface{}, ext ProviderExtensions) map[string]interface{}
}

// SDKCompat is the contract for providers driven through a vendor client
// library rather than raw HTTP (grounded on GeminiAdapter).
type SDKCompat interface {
	Compat
	CallSDK(ctx context.Context, model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (types.Response, error)
	StreamSDK(ctx context.Context, model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (<-chan ParsedChunk, <-chan error)
	BuildSDKParams(model string, settings types.Settings, messages []types.Message, tools []types.Tool, toolChoice types.ToolChoice) (interface{}, error)
	ParseSDKResponse(raw interface{}, model string) (types.Response, error)
	ParseSDKChunk(raw interface{}) (ParsedChunk, error)
}

// ErrUnsupportedShape describes an HTTPCompat method requested of an
// SDK-shape compat module. The SDK-shape compats in this module do not
// implement the HTTPCompat methods at all, so none of them returns it.
type ErrUnsupportedShape struct {
	Family string
	Method string
}

func (e *ErrUnsupportedShape) Error() string {
	return e.Family + " is an SDK-shape compat module; " + e.Method + " is not supported"
}

// SanitizeToolName maps a tool name to the identifier-safe form every
// compat module must emit on the wire ("Names are sanitized for
// provider compatibility (non-identifier characters -> _)").
func SanitizeToolName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
