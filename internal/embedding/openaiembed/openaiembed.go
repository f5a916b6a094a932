// Package openaiembed implements embedding.Provider over the OpenAI
// embeddings endpoint via the official openai-go/v3 SDK client, grounded
// on OpenAIEmbedding (agent/embedding_openai.go) updated
// from the retired v1 client to v3. It is the only package in this module
// that uses the OpenAI SDK; the openaicompat module builds raw JSON.
package openaiembed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Default embedding models (spec has no opinion on model choice; carried
// from named constants).
const (
	ModelSmall = "text-embedding-3-small"
	ModelLarge = "text-embedding-3-large"
	ModelAda002 = "text-embedding-ada-002"
)

// Provider is an OpenAI-backed embedding.Provider.
type Provider struct {
	id string
	client *openai.Client
	model string
}

// New creates an OpenAI embedding provider.
func New(id, model, apiKey, baseURL string) (*Provider, error) {
	if model == "" {
		model = ModelSmall
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openaiembed: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Provider{id: id, client: &client, model: model}, nil
}

func (p *Provider) ID() string { return p.id }

// Embed batches texts into one embeddings.New call.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openaiembed: embeddings request: %w", err)
	}

	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
