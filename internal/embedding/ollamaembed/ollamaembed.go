// Package ollamaembed implements embedding.Provider over Ollama's
// single-text embedding endpoint, grounded on OllamaEmbedding
// (agent/embedding_ollama.go).
package ollamaembed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ModelNomic = "nomic-embed-text"
	ModelMxbai = "mxbai-embed-large"
	ModelAllMiniLM = "all-minilm"
	DefaultBaseURL = "http://localhost:11434"
)

// Provider is an Ollama-backed embedding.Provider.
type Provider struct {
	id string
	baseURL string
	model string
	client *http.Client
}

// New creates an Ollama embedding provider.
func New(id, model, baseURL string) *Provider {
	if model == "" {
		model = ModelNomic
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		id: id,
		baseURL: baseURL,
		model: model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) ID() string { return p.id }

type embeddingRequest struct {
	Model string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed issues one request per text; Ollama's embedding endpoint has no
// batch form.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("ollamaembed: text cannot be empty")
		}
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) embedOne(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollamaembed: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollamaembed: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollamaembed: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollamaembed: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollamaembed: server returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ollamaembed: decoding response: %w", err)
	}
	return parsed.Embedding, nil
}
