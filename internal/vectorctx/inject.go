// Package vectorctx implements the vector-context injector of :
// an optional pre-call step that rewrites the message list to inject
// retrieved passages, plus (in search_tool.go) the handler backing the
// synthetic vector_search tool of Query-derivation and
// chunking shape is grounded on RAG helpers (agent/rag.go);
// template interpolation uses tidwall/gjson for null-safe nested lookup
// the way no code in the corpus does by hand.
package vectorctx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/embedding"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
	"github.com/tidwall/gjson"
)

// StoreResolver returns the live VectorStore for a registered store id.
type StoreResolver func(id string) (vectorstore.VectorStore, error)

// EmbeddingResolver returns the live embedding.Provider for a registered
// embedding provider id.
type EmbeddingResolver func(id string) (embedding.Provider, error)

// Injector performs retrieval and message-list rewriting for one call.
type Injector struct {
	Stores StoreResolver
	Embeddings EmbeddingResolver
}

// New creates an Injector backed by the given resolvers.
func New(stores StoreResolver, embeddings EmbeddingResolver) *Injector {
	return &Injector{Stores: stores, Embeddings: embeddings}
}

// BuildQuery implements queryConstruction rule: concatenates
// the trailing messagesToInclude messages' text, honoring
// includeAssistantMessages and includeSystemPrompt.
func BuildQuery(messages []types.Message, qc types.QueryConstruction) string {
	n := qc.MessagesToInclude
	if n <= 0 || n > len(messages) {
		n = len(messages)
	}
	window := messages[len(messages)-n:]

	var parts []string
	for i, m := range window {
		switch m.Role {
		case types.RoleSystem:
			switch qc.IncludeSystemPrompt {
			case types.IncludeSystemAlways:
				parts = append(parts, m.TextContent())
			case types.IncludeSystemIfInRange:
				// "in range" means the system message falls within the
				// already-selected trailing window, which it does here by
				// construction.
				parts = append(parts, m.TextContent())
			case types.IncludeSystemNever:
				// excluded
			default:
				// unset behaves as never
			}
		case types.RoleAssistant:
			if qc.IncludeAssistantMessages {
				parts = append(parts, m.TextContent())
			}
		case types.RoleUser:
			parts = append(parts, m.TextContent())
		}
		_ = i
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Retrieve runs the configured retrieval: derives a query (or uses
// cfg.OverrideEmbeddingQuery when set), embeds it with the first available
// embedding provider in cfg.EmbeddingPriority, searches the stores in
// cfg.Stores in order (stopping once topK results have been gathered,
// when topK > 0), and returns the merged, topK-capped result set. Score
// thresholding is left to each store's Search.
func (inj *Injector) Retrieve(ctx context.Context, cfg types.VectorContextConfig, query string) ([]vectorstore.Document, error) {
	if cfg.OverrideEmbeddingQuery != "" {
		query = cfg.OverrideEmbeddingQuery
	}
	if query == "" {
		return nil, nil
	}

	var vector []float64
	var lastErr error
	for _, embID := range cfg.EmbeddingPriority {
		provider, err := inj.Embeddings(embID)
		if err != nil {
			lastErr = err
			continue
		}
		vecs, err := provider.Embed(ctx, []string{query})
		if err != nil {
			lastErr = err
			continue
		}
		vector = vecs[0]
		lastErr = nil
		break
	}
	if vector == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("vectorctx: no embedding provider available: %w", lastErr)
		}
		return nil, fmt.Errorf("vectorctx: no embedding provider configured")
	}

	topK := cfg.TopK
	if cfg.Locks.IsLocked("topK") {
		topK = *cfg.Locks.TopK
	}
	scoreThreshold := cfg.ScoreThreshold
	if cfg.Locks.IsLocked("scoreThreshold") {
		scoreThreshold = *cfg.Locks.ScoreThreshold
	}
	collection := cfg.Collection
	if cfg.Locks.IsLocked("collection") {
		collection = cfg.Locks.Collection
	}
	filter := cfg.Filter
	if cfg.Locks.IsLocked("filter") {
		filter = cfg.Locks.Filter
	}

	stores := cfg.Stores
	if cfg.Locks.IsLocked("store") {
		stores = []string{cfg.Locks.Store}
	}

	var merged []vectorstore.Document
	for _, storeID := range stores {
		store, err := inj.Stores(storeID)
		if err != nil {
			return nil, err
		}
		docs, err := store.Search(ctx, vectorstore.SearchRequest{
			Collection: collection,
			QueryText: query,
			QueryVector: vector,
			TopK: topK,
			ScoreThreshold: scoreThreshold,
			Filter: filter,
		})
		if err != nil {
			return nil, fmt.Errorf("vectorctx: searching store %q: %w", storeID, err)
		}
		merged = append(merged, docs...)
		if len(merged) >= topK && topK > 0 {
			break
		}
	}

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Inject rewrites messages to carry the retrieved documents, per
// cfg.InjectAs and cfg.InjectTemplate. When InjectTemplate is
// empty, documents are joined with a blank line separator using their raw
// content (or the configured resultFormat).
func Inject(messages []types.Message, cfg types.VectorContextConfig, docs []vectorstore.Document) []types.Message {
	if len(docs) == 0 {
		return messages
	}

	rendered := renderDocs(docs, cfg)

	switch cfg.InjectAs {
	case types.InjectAsSystem:
		return prependSystem(messages, rendered)
	case types.InjectAsUserContext:
		return appendToLastUser(messages, rendered)
	default:
		return prependSystem(messages, rendered)
	}
}

func renderDocs(docs []vectorstore.Document, cfg types.VectorContextConfig) string {
	var blocks []string
	for _, d := range docs {
		if cfg.InjectTemplate != "" {
			blocks = append(blocks, renderTemplate(cfg.InjectTemplate, d))
			continue
		}
		if cfg.ResultFormat == "json" {
			raw, _ := json.Marshal(d)
			blocks = append(blocks, string(raw))
			continue
		}
		blocks = append(blocks, d.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// renderTemplate resolves `{{payload.*}}`-style placeholders against a
// retrieved document using gjson, treating any missing path as an empty
// string (null-safe nested lookup). The document is exposed under the
// keys id, content, score and metadata. The template is applied to each
// document separately; there is no `{{results}}` placeholder, so one
// renders as an empty string.
func renderTemplate(tmpl string, doc vectorstore.Document) string {
	raw, _ := json.Marshal(map[string]interface{}{"id": doc.ID, "content": doc.Content, "score": doc.Score, "metadata": doc.Metadata})
	root := gjson.ParseBytes(raw)

	out := tmpl
	for {
		start := strings.Index(out, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(out[start:], "}}")
		if end == -1 {
			break
		}
		end += start
		path := strings.TrimSpace(out[start+2 : end])
		path = strings.TrimPrefix(path, "payload.")
		value := root.Get(path).String()
		out = out[:start] + value + out[end+2:]
	}
	return out
}

func prependSystem(messages []types.Message, text string) []types.Message {
	out := make([]types.Message, 0, len(messages)+1)
	out = append(out, types.Message{Role: types.RoleSystem, Content: []types.ContentPart{types.Text(text)}})
	out = append(out, messages...)
	return out
}

func appendToLastUser(messages []types.Message, text string) []types.Message {
	out := make([]types.Message, len(messages))
	copy(out, messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == types.RoleUser {
			content := make([]types.ContentPart, len(out[i].Content))
			copy(content, out[i].Content)
			content = append(content, types.Text("\n\n"+text))
			out[i].Content = content
			return out
		}
	}
	// no user message to attach to: fall back to a system message
	return prependSystem(out, text)
}
