// Package embedding declares the embedding-provider contract consumed by
// the vector-context injector: embedding drivers are external
// collaborators behind a small interface selected by embeddingPriority.
// Concrete drivers live in subpackages, grounded on the EmbeddingProvider
// family (agent/embedding.go, agent/embedding_openai.go,
// agent/embedding_ollama.go).
package embedding

import "context"

// Provider embeds one or more texts into fixed-width float64 vectors.
type Provider interface {
	ID() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
