package memstore

import (
	"context"
	"testing"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
)

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	s := New("mem")
	s.Upsert("docs", "a", "exact match", []float64{1, 0}, nil)
	s.Upsert("docs", "b", "orthogonal", []float64{0, 1}, nil)
	s.Upsert("docs", "c", "close match", []float64{0.9, 0.1}, nil)

	docs, err := s.Search(context.Background(), vectorstore.SearchRequest{
		Collection:  "docs",
		QueryVector: []float64{1, 0},
		TopK:        2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(docs))
	}
	if docs[0].ID != "a" {
		t.Fatalf("expected the exact match to rank first, got %q", docs[0].ID)
	}
	if docs[0].Score < docs[1].Score {
		t.Fatal("expected descending score order")
	}
}

func TestSearchAppliesScoreThreshold(t *testing.T) {
	s := New("mem")
	s.Upsert("docs", "a", "match", []float64{1, 0}, nil)
	s.Upsert("docs", "b", "orthogonal", []float64{0, 1}, nil)

	docs, err := s.Search(context.Background(), vectorstore.SearchRequest{
		Collection:     "docs",
		QueryVector:    []float64{1, 0},
		ScoreThreshold: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Fatalf("expected only the above-threshold match, got %+v", docs)
	}
}

func TestSearchAppliesMetadataFilter(t *testing.T) {
	s := New("mem")
	s.Upsert("docs", "a", "match", []float64{1, 0}, map[string]interface{}{"lang": "en"})
	s.Upsert("docs", "b", "match2", []float64{1, 0}, map[string]interface{}{"lang": "fr"})

	docs, err := s.Search(context.Background(), vectorstore.SearchRequest{
		Collection:  "docs",
		QueryVector: []float64{1, 0},
		Filter:      map[string]interface{}{"lang": "fr"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "b" {
		t.Fatalf("expected only the filter-matching document, got %+v", docs)
	}
}

func TestSearchRequiresQueryVector(t *testing.T) {
	s := New("mem")
	if _, err := s.Search(context.Background(), vectorstore.SearchRequest{Collection: "docs"}); err == nil {
		t.Fatal("expected an error when the query vector is empty")
	}
}

func TestUpsertReplacesExistingRecord(t *testing.T) {
	s := New("mem")
	s.Upsert("docs", "a", "first version", []float64{1, 0}, nil)
	s.Upsert("docs", "a", "second version", []float64{1, 0}, nil)

	docs, err := s.Search(context.Background(), vectorstore.SearchRequest{
		Collection:  "docs",
		QueryVector: []float64{1, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "second version" {
		t.Fatalf("expected the upsert to replace rather than duplicate, got %+v", docs)
	}
}

func TestSearchSkipsDimensionMismatch(t *testing.T) {
	s := New("mem")
	s.Upsert("docs", "a", "mismatched", []float64{1, 0, 0}, nil)
	s.Upsert("docs", "b", "matched", []float64{1, 0}, nil)

	docs, err := s.Search(context.Background(), vectorstore.SearchRequest{
		Collection:  "docs",
		QueryVector: []float64{1, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "b" {
		t.Fatalf("expected the dimension-mismatched record skipped, got %+v", docs)
	}
}
