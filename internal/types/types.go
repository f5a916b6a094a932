// Package types defines the provider-agnostic wire contract shared by the
// coordinator, the streaming aggregator, the server, and every compat
// module: the call specification, the normalized message and response
// shapes, and the tagged unions used for content parts and stream events.
package types

import "fmt"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool Role = "tool"
)

// ContentPartType discriminates the ContentPart tagged union.
type ContentPartType string

const (
	ContentText ContentPartType = "text"
	ContentImage ContentPartType = "image"
	ContentDocument ContentPartType = "document"
	ContentToolResult ContentPartType = "tool_result"
)

// DocumentSource discriminates how a document ContentPart carries its bytes.
type DocumentSource string

const (
	DocumentSourceBase64 DocumentSource = "base64"
	DocumentSourceURL DocumentSource = "url"
	DocumentSourceFileID DocumentSource = "file_id"
)

// ContentPart is one element of a Message's content sequence. Exactly one
// of the payload fields is meaningful, selected by Type.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text is set when Type == ContentText.
	Text string `json:"text,omitempty"`

	// Image fields, set when Type == ContentImage. URL may be a data: URI
	// or a remote URL; adapters decide which their provider accepts.
	ImageURL string `json:"imageUrl,omitempty"`

	// Document fields, set when Type == ContentDocument.
	DocumentSource DocumentSource `json:"documentSource,omitempty"`
	DocumentData string `json:"documentData,omitempty"` // base64 payload or file_id or url, per DocumentSource
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	ProviderOptions map[string]interface{} `json:"providerOptions,omitempty"`

	// ToolResult fields, set when Type == ContentToolResult.
	ToolName string `json:"toolName,omitempty"`
	ToolResult interface{} `json:"toolResult,omitempty"`
}

// Text returns a plain text content part.
func Text(s string) ContentPart { return ContentPart{Type: ContentText, Text: s} }

// ToolResultPart returns a tool_result content part carrying either a
// successful result or an {"error": ...} payload per step 4.
func ToolResultPart(toolName string, result interface{}) ContentPart {
	return ContentPart{Type: ContentToolResult, ToolName: toolName, ToolResult: result}
}

// Message is one turn in the conversation. Content is an ordered sequence
// of ContentPart, allowing mixed text/image/document/tool_result turns.
type Message struct {
	Role Role `json:"role"`
	Content []ContentPart `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TextContent concatenates all text parts of the message, ignoring
// image/document/tool_result parts. Used by query construction
// and tool-countdown injection (step 5).
func (m Message) TextContent() string {
	out := ""
	for _, p := range m.Content {
		if p.Type == ContentText {
			out += p.Text
		}
	}
	return out
}

// ToolCall is a single invocation the model requested.
type ToolCall struct {
	ID string `json:"id"`
	Name string `json:"name"`
	Arguments string `json:"arguments"`
	Metadata map[string]interface{} `json:"metadata,omitempty"` // opaque provider fields (e.g. thoughtSignature), round-tripped verbatim
}

// Tool is one callable the model may invoke.
type Tool struct {
	Name string `json:"name"`
	Description string `json:"description"`
	ParametersJSONSchema map[string]interface{} `json:"parametersJsonSchema"`
}

// ToolChoice controls how the model is nudged to use tools. Left as a
// provider-opaque value; the coordinator never inspects it.
type ToolChoice = interface{}

// Settings carries the recognized CallSpec settings. All fields
// are optional; zero value means "let the provider default decide" except
// where noted.
type Settings struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP *float64 `json:"topP,omitempty"`
	MaxTokens *int `json:"maxTokens,omitempty"`
	Stop []string `json:"stop,omitempty"`
	ReasoningBudget *int `json:"reasoningBudget,omitempty"`
	BatchSize *int `json:"batchSize,omitempty"`
}

// ProviderTarget is one entry of CallSpec.LLMPriority.
type ProviderTarget struct {
	Provider string `json:"provider"`
	Model string `json:"model"`
}

// IncludeSystemPromptMode controls query-construction system-prompt
// inclusion in the vector context injector.
type IncludeSystemPromptMode string

const (
	IncludeSystemAlways IncludeSystemPromptMode = "always"
	IncludeSystemNever IncludeSystemPromptMode = "never"
	IncludeSystemIfInRange IncludeSystemPromptMode = "if-in-range"
)

// QueryConstruction configures how the injector derives a retrieval query
// from the message list.
type QueryConstruction struct {
	MessagesToInclude int `json:"messagesToInclude"`
	IncludeAssistantMessages bool `json:"includeAssistantMessages"`
	IncludeSystemPrompt IncludeSystemPromptMode `json:"includeSystemPrompt"`
}

// VectorContextMode selects how retrieval participates in a call.
type VectorContextMode string

const (
	VectorModeAuto VectorContextMode = "auto"
	VectorModeTool VectorContextMode = "tool"
	VectorModeBoth VectorContextMode = "both"
)

// InjectAs selects where retrieved context is injected into the message
// list.
type InjectAs string

const (
	InjectAsSystem InjectAs = "system"
	InjectAsUserContext InjectAs = "user_context"
)

// VectorLocks are server-enforced overrides for the synthetic vector_search
// tool; any field set here wins over both config defaults and LLM-supplied
// arguments (glossary "Locks").
type VectorLocks struct {
	Store string `json:"store,omitempty"`
	TopK *int `json:"topK,omitempty"`
	ScoreThreshold *float64 `json:"scoreThreshold,omitempty"`
	Collection string `json:"collection,omitempty"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// IsLocked reports whether the named vector_search parameter is locked.
func (l VectorLocks) IsLocked(param string) bool {
	switch param {
	case "store":
		return l.Store != ""
	case "topK":
		return l.TopK != nil
	case "scoreThreshold":
		return l.ScoreThreshold != nil
	case "collection":
		return l.Collection != ""
	case "filter":
		return l.Filter != nil
	}
	return false
}

// ToolSchemaOverride customizes one parameter of the synthetic vector_search
// tool's JSON schema: renaming it (with an alias), overriding its
// description, or hiding an optional parameter.
type ToolSchemaOverride struct {
	Rename string `json:"rename,omitempty"`
	Description string `json:"description,omitempty"`
	Hide bool `json:"hide,omitempty"`
}

// VectorContextConfig is the retrieval configuration attached to a CallSpec
//.
type VectorContextConfig struct {
	Stores []string `json:"stores"`
	Mode VectorContextMode `json:"mode"`
	TopK int `json:"topK"`
	ScoreThreshold float64 `json:"scoreThreshold"`
	Filter map[string]interface{} `json:"filter,omitempty"`
	Collection string `json:"collection,omitempty"`
	EmbeddingPriority []string `json:"embeddingPriority,omitempty"`
	InjectAs InjectAs `json:"injectAs"`
	InjectTemplate string `json:"injectTemplate,omitempty"`
	ResultFormat string `json:"resultFormat,omitempty"`
	QueryConstruction QueryConstruction `json:"queryConstruction"`
	OverrideEmbeddingQuery string `json:"overrideEmbeddingQuery,omitempty"`
	Locks VectorLocks `json:"locks,omitempty"`
	ToolSchemaOverrides map[string]ToolSchemaOverride `json:"toolSchemaOverrides,omitempty"`
}

// Runtime holds per-call execution knobs.
type Runtime struct {
	MaxToolIterations int `json:"maxToolIterations"`
	ToolCountdownEnabled bool `json:"toolCountdownEnabled"`
	ToolFinalPromptEnabled bool `json:"toolFinalPromptEnabled"`
	BatchID string `json:"batchId,omitempty"`
}

// DefaultMaxToolIterations is used whenever Runtime.MaxToolIterations
// parses to something non-positive ("numeric truncation, string
// coercion, NaN/Infinity/null/undefined -> default 10").
const DefaultMaxToolIterations = 10

// NormalizeMaxToolIterations applies the permissive parsing rule for a raw
// value that may have arrived as a float, string, or missing.
func NormalizeMaxToolIterations(raw interface{}) int {
	switch v := raw.(type) {
	case nil:
		return DefaultMaxToolIterations
	case int:
		if v <= 0 {
			return DefaultMaxToolIterations
		}
		return v
	case int64:
		return NormalizeMaxToolIterations(int(v))
	case float64:
		if v != v || v < 0 { // NaN check: v != v
			return DefaultMaxToolIterations
		}
		n := int(v)
		if n <= 0 {
			return DefaultMaxToolIterations
		}
		return n
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
			return DefaultMaxToolIterations
		}
		return n
	default:
		return DefaultMaxToolIterations
	}
}

// CallSpec is the single declarative input the coordinator executes.
type CallSpec struct {
	Messages []Message `json:"messages"`
	LLMPriority []ProviderTarget `json:"llmPriority"`
	Settings Settings `json:"settings"`
	Tools []Tool `json:"tools,omitempty"`
	FunctionToolNames []string `json:"functionToolNames,omitempty"`
	MCPServers []string `json:"mcpServers,omitempty"`
	VectorPriority []string `json:"vectorPriority,omitempty"`
	VectorContext *VectorContextConfig `json:"vectorContext,omitempty"`
	Runtime Runtime `json:"runtime"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TokenUsage mirrors a provider's reported token accounting.
type TokenUsage struct {
	PromptTokens int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens int `json:"totalTokens"`
	ReasoningTokens *int `json:"reasoningTokens,omitempty"`
}

// Response is the normalized assistant turn returned by Run and by the
// streaming aggregator's terminal DONE event.
type Response struct {
	Provider string `json:"provider"`
	Model string `json:"model"`
	Role Role `json:"role"`
	Content []ContentPart `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Usage *TokenUsage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason"`
	Raw interface{} `json:"raw,omitempty"`
}

// ToolCallBudget is the per-request counter limiting total tool
// invocations (glossary).
type ToolCallBudget struct {
	Remaining int
	Initial int
}

// NewToolCallBudget creates a budget with the given initial allowance.
func NewToolCallBudget(initial int) *ToolCallBudget {
	if initial < 0 {
		initial = 0
	}
	return &ToolCallBudget{Remaining: initial, Initial: initial}
}

// Consume decrements the budget by one, returning false (without going
// negative) when the budget is already exhausted.
func (b *ToolCallBudget) Consume() bool {
	if b.Remaining <= 0 {
		return false
	}
	b.Remaining--
	return true
}

// Exhausted reports whether no further tool invocations are allowed.
func (b *ToolCallBudget) Exhausted() bool { return b.Remaining == 0 }
