package openaiembed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedPostsBatchAndParsesVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["model"] != ModelSmall {
			t.Fatalf("expected the default model, got %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2}},
				{"object": "embedding", "index": 1, "embedding": []float64{0.3, 0.4}},
			},
			"model": ModelSmall,
			"usage": map[string]interface{}{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
	defer srv.Close()

	p, err := New("openai", "", "sk-test", srv.URL)
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}

	out, err := p.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two embeddings, got %d", len(out))
	}
	if out[0][0] != 0.1 || out[1][1] != 0.4 {
		t.Fatalf("unexpected embeddings: %+v", out)
	}
}

func TestEmbedEmptyInputReturnsNoVectors(t *testing.T) {
	p, err := New("openai", "", "sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := p.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("expected a nil result for empty input, got %+v", out)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("openai", ModelLarge, "", ""); err == nil {
		t.Fatal("expected an error when no API key is provided")
	}
}

func TestNewAppliesDefaultModel(t *testing.T) {
	p, err := New("openai", "", "sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != ModelSmall {
		t.Fatalf("expected the default model applied, got %q", p.model)
	}
}

func TestIDReturnsConfiguredID(t *testing.T) {
	p, err := New("my-openai", ModelAda002, "sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID() != "my-openai" {
		t.Fatalf("unexpected id: %q", p.ID())
	}
}
