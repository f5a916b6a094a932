package vectorctx

import (
	"context"
	"fmt"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

// SearchToolHandler executes the synthetic vector_search tool:
// locked parameters always win over LLM-supplied arguments, which in turn
// win over config defaults.
type SearchToolHandler struct {
	Injector *Injector
	Config types.VectorContextConfig
	ParamAlias map[string]string // exposed arg name -> canonical key (query/topK/store/filter)
}

func (h *SearchToolHandler) Name() string { return "vector_search" }

// Execute resolves final parameter values per precedence
// locks > LLM args > config defaults, then performs retrieval and returns
// a plain-data result (a slice of documents) for the tool loop to
// stringify.
func (h *SearchToolHandler) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	canonical := h.canonicalizeArgs(args)

	query, _ := canonical["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("vector_search: query is required")
	}

	cfg := h.Config
	if !cfg.Locks.IsLocked("store") {
		if store, ok := canonical["store"].(string); ok && store != "" {
			cfg.Stores = []string{store}
		}
	}
	if !cfg.Locks.IsLocked("topK") {
		if topK, ok := asInt(canonical["topK"]); ok {
			cfg.TopK = topK
		}
	}
	if !cfg.Locks.IsLocked("collection") {
		if collection, ok := canonical["collection"].(string); ok && collection != "" {
			cfg.Collection = collection
		}
	}
	if !cfg.Locks.IsLocked("filter") {
		if filter, ok := canonical["filter"].(map[string]interface{}); ok {
			cfg.Filter = filter
		}
	}

	docs, err := h.Injector.Retrieve(ctx, cfg, query)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// canonicalizeArgs maps exposed (possibly renamed) argument names back to
// their canonical query/topK/store/filter keys.
func (h *SearchToolHandler) canonicalizeArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for exposed, v := range args {
		key := exposed
		if h.ParamAlias != nil {
			if canonical, ok := h.ParamAlias[exposed]; ok {
				key = canonical
			}
		}
		out[key] = v
	}
	return out
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
