// Package qdrantstore implements vectorstore.VectorStore against a Qdrant
// server's HTTP API, grounded on QdrantStore
// (agent/qdrant.go) — request/response shapes and doRequest — narrowed to
// the retrieval-only operation this system needs.
package qdrantstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
)

// Store is a Qdrant-backed VectorStore.
type Store struct {
	id string
	baseURL string
	apiKey string
	client *http.Client
}

// New creates a Store identified by id, pointed at a Qdrant server.
func New(id, baseURL, apiKey string) *Store {
	return &Store{
		id: id,
		baseURL: baseURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Store) ID() string { return s.id }

type searchRequest struct {
	Vector []float64 `json:"vector"`
	Limit int `json:"limit"`
	WithPayload bool `json:"with_payload"`
	Filter map[string]interface{} `json:"filter,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

type searchResponse struct {
	Result []struct {
		ID interface{} `json:"id"`
		Score float64 `json:"score"`
		Payload map[string]interface{} `json:"payload,omitempty"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search issues a Qdrant point search against req.Collection.
func (s *Store) Search(ctx context.Context, req vectorstore.SearchRequest) ([]vectorstore.Document, error) {
	if len(req.QueryVector) == 0 {
		return nil, fmt.Errorf("qdrantstore: search requires a query vector")
	}

	body := searchRequest{
		Vector: req.QueryVector,
		Limit: req.TopK,
		WithPayload: true,
	}
	if req.ScoreThreshold > 0 {
		body.ScoreThreshold = &req.ScoreThreshold
	}
	if len(req.Filter) > 0 {
		body.Filter = convertFilter(req.Filter)
	}

	raw, err := s.doRequest(ctx, "POST", "/collections/"+req.Collection+"/points/search", body)
	if err != nil {
		return nil, fmt.Errorf("qdrantstore: search %q: %w", req.Collection, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("qdrantstore: decoding search response: %w", err)
	}

	out := make([]vectorstore.Document, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		id := fmt.Sprintf("%v", r.ID)
		content, _ := r.Payload["content"].(string)
		out = append(out, vectorstore.Document{ID: id, Content: content, Score: r.Score, Metadata: r.Payload})
	}
	return out, nil
}

// convertFilter renders an exact-match metadata filter as Qdrant's "must"
// clause shape.
func convertFilter(filter map[string]interface{}) map[string]interface{} {
	var must []map[string]interface{}
	for k, v := range filter {
		must = append(must, map[string]interface{}{
			"key": k,
			"match": map[string]interface{}{"value": v},
		})
	}
	return map[string]interface{}{"must": must}
}

func (s *Store) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

var _ vectorstore.VectorStore = (*Store)(nil)
