// Package tools implements tool resolution ("collectTools") and
// the synthetic vector_search tool builder, grounded on
// fluent Tool/AddParameter builder (agent/tool.go)
// generalized to the normalized types.Tool shape.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

// Handler executes one tool invocation. Registry-backed function tools and
// the synthetic vector_search tool both implement it.
type Handler interface {
	Name() string
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// AliasMap is the bidirectional sanitized<->original tool name mapping
// maintained per call ("Tool").
type AliasMap struct {
	sanitizedToOriginal map[string]string
}

// NewAliasMap creates an empty AliasMap.
func NewAliasMap() *AliasMap {
	return &AliasMap{sanitizedToOriginal: make(map[string]string)}
}

// Add records a sanitized->original mapping, the first registration for a
// given sanitized name winning (matches "first one wins" dedup semantics
// used elsewhere in the registry/manifest loading).
func (a *AliasMap) Add(sanitized, original string) {
	if _, exists := a.sanitizedToOriginal[sanitized]; !exists {
		a.sanitizedToOriginal[sanitized] = original
	}
}

// Original returns the original name for a sanitized one, or the sanitized
// name itself if it was never aliased.
func (a *AliasMap) Original(sanitized string) string {
	if orig, ok := a.sanitizedToOriginal[sanitized]; ok {
		return orig
	}
	return sanitized
}

// Sources supplies the inputs collectTools concatenates, in spec-mandated
// order: spec inline tools, function tools, MCP tools, vector-retrieved
// tools, then (conditionally) the synthetic vector_search tool.
type Sources struct {
	Inline []types.Tool
	FunctionToolNames []string
	ResolveFunction func(name string) (types.Tool, error)
	MCPServerIDs []string
	ResolveMCP func(ctx context.Context, serverID string) ([]types.Tool, error)
	VectorRetrieved []types.Tool
	VectorSearchTool *types.Tool // non-nil when vectorContext.mode ∈ {tool, both}
}

// CollectResult is the outcome of collectTools: the de-duplicated,
// name-sanitized tool list and its alias map.
type CollectResult struct {
	Tools []types.Tool
	Alias *AliasMap
}

// Collect concatenates every tool source in the order requires,
// sanitizing each tool's name and recording the sanitized->original
// mapping.
func Collect(ctx context.Context, src Sources) (CollectResult, error) {
	alias := NewAliasMap()
	var out []types.Tool

	appendTool := func(t types.Tool) {
		sanitized := compat.SanitizeToolName(t.Name)
		alias.Add(sanitized, t.Name)
		t.Name = sanitized
		out = append(out, t)
	}

	for _, t := range src.Inline {
		appendTool(t)
	}

	for _, name := range src.FunctionToolNames {
		if src.ResolveFunction == nil {
			return CollectResult{}, errs.ManifestError("tool", name)
		}
		t, err := src.ResolveFunction(name)
		if err != nil {
			return CollectResult{}, err
		}
		appendTool(t)
	}

	for _, serverID := range src.MCPServerIDs {
		if src.ResolveMCP == nil {
			return CollectResult{}, errs.ManifestError("mcp server", serverID)
		}
		mcpTools, err := src.ResolveMCP(ctx, serverID)
		if err != nil {
			return CollectResult{}, err
		}
		for _, t := range mcpTools {
			appendTool(t)
		}
	}

	for _, t := range src.VectorRetrieved {
		appendTool(t)
	}

	if src.VectorSearchTool != nil {
		appendTool(*src.VectorSearchTool)
	}

	return CollectResult{Tools: out, Alias: alias}, nil
}

// DeriveVectorQuery implements "vector query derivation": the
// explicit query, else the latest user message's text, else empty (caller
// treats empty as "retrieval skipped").
func DeriveVectorQuery(explicit string, messages []types.Message) string {
	if explicit != "" {
		return explicit
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			if text := messages[i].TextContent(); text != "" {
				return text
			}
		}
	}
	return ""
}

// BuildVectorSearchTool constructs the synthetic vector_search tool
// declaration: its schema is built from
// {query, topK, store, filter}; query is always required; locked
// parameters are omitted; toolSchemaOverrides may rename (with a
// generated alias), override descriptions, or hide optional parameters.
// Duplicate exposed names after renaming are an error.
func BuildVectorSearchTool(cfg types.VectorContextConfig) (types.Tool, map[string]string, error) {
	type param struct {
		key string
		required bool
		schema map[string]interface{}
	}
	params := []param{
		{key: "query", required: true, schema: map[string]interface{}{"type": "string", "description": "Natural-language search query."}},
		{key: "topK", required: false, schema: map[string]interface{}{"type": "integer", "description": "Maximum number of results to return."}},
		{key: "store", required: false, schema: map[string]interface{}{"type": "string", "description": "Vector store id to search."}},
		{key: "filter", required: false, schema: map[string]interface{}{"type": "object", "description": "Metadata filter applied to the search."}},
	}

	properties := map[string]interface{}{}
	var required []string
	renameAlias := map[string]string{} // exposed name -> canonical param key

	exposedNames := map[string]bool{}

	for _, p := range params {
		if cfg.Locks.IsLocked(p.key) {
			continue // locked parameters are always hidden
		}

		exposedName := p.key
		schema := p.schema
		hide := false

		if override, ok := cfg.ToolSchemaOverrides[p.key]; ok {
			if override.Hide && !p.required {
				hide = true
			}
			if override.Rename != "" {
				exposedName = override.Rename
			}
			if override.Description != "" {
				schemaCopy := map[string]interface{}{}
				for k, v := range schema {
					schemaCopy[k] = v
				}
				schemaCopy["description"] = override.Description
				schema = schemaCopy
			}
		}

		if hide {
			continue
		}

		if exposedNames[exposedName] {
			return types.Tool{}, nil, fmt.Errorf("tools: duplicate exposed vector_search parameter name %q", exposedName)
		}
		exposedNames[exposedName] = true

		properties[exposedName] = schema
		renameAlias[exposedName] = p.key
		if p.required {
			required = append(required, exposedName)
		}
	}

	sort.Strings(required)

	return types.Tool{
		Name: "vector_search",
		Description: "Search a configured vector store for passages relevant to a query.",
		ParametersJSONSchema: map[string]interface{}{
			"type": "object",
			"properties": properties,
			"required": required,
		},
	}, renameAlias, nil
}
