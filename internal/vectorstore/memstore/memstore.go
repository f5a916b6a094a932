// Package memstore is an in-memory VectorStore, grounded on
// CosineSimilarity (agent/embedding.go) but computed with
// gonum.org/v1/gonum/floats instead of a hand-rolled loop, and on its
// VectorStore/Search/SearchByText contract (agent/vector_store.go)
// narrowed to this system's retrieval-only needs. Intended for tests and
// small deployments; production collections use qdrantstore.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
	"gonum.org/v1/gonum/floats"
)

type record struct {
	id string
	content string
	vector []float64
	metadata map[string]interface{}
}

// Store is a mutex-protected, per-collection slice of records scored by
// cosine similarity at query time.
type Store struct {
	id string

	mu sync.RWMutex
	collections map[string][]record
}

// New creates an empty in-memory store identified by id.
func New(id string) *Store {
	return &Store{id: id, collections: make(map[string][]record)}
}

func (s *Store) ID() string { return s.id }

// Upsert adds or replaces a document's vector and metadata in collection.
func (s *Store) Upsert(collection, id, content string, vector []float64, metadata map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.collections[collection]
	for i, r := range recs {
		if r.id == id {
			recs[i] = record{id: id, content: content, vector: vector, metadata: metadata}
			return
		}
	}
	s.collections[collection] = append(recs, record{id: id, content: content, vector: vector, metadata: metadata})
}

// Search scores every record in req.Collection against req.QueryVector by
// cosine similarity, applies req.Filter (exact-match on every key) and
// req.ScoreThreshold, and returns the top req.TopK by descending score.
func (s *Store) Search(ctx context.Context, req vectorstore.SearchRequest) ([]vectorstore.Document, error) {
	if len(req.QueryVector) == 0 {
		return nil, fmt.Errorf("memstore: search requires a query vector")
	}

	s.mu.RLock()
	recs := append([]record(nil), s.collections[req.Collection]...)
	s.mu.RUnlock()

	var scored []vectorstore.Document
	for _, r := range recs {
		if !matchesFilter(r.metadata, req.Filter) {
			continue
		}
		score, err := cosineSimilarity(req.QueryVector, r.vector)
		if err != nil {
			continue // dimension mismatch: skip rather than fail the whole search
		}
		if score < req.ScoreThreshold {
			continue
		}
		scored = append(scored, vectorstore.Document{ID: r.id, Content: r.content, Score: score, Metadata: r.metadata})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	topK := req.TopK
	if topK <= 0 || topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func matchesFilter(metadata, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("memstore: vectors must have same dimensions: %d vs %d", len(a), len(b))
	}
	dot := floats.Dot(a, b)
	normA := math.Sqrt(floats.Dot(a, a))
	normB := math.Sqrt(floats.Dot(b, b))
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("memstore: cannot score a zero vector")
	}
	return dot / (normA * normB), nil
}

var _ vectorstore.VectorStore = (*Store)(nil)
