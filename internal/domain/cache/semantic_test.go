package cache

import (
	"context"
	"errors"
	"testing"
)

// stubEmbedder maps known strings to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func TestSemanticIndexSearch(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"quarterly budget review":   {1, 0, 0},
		"team lunch friday":         {0, 1, 0},
		"budget meeting":            {0.9, 0.1, 0},
		"finance planning for 2026": {0.8, 0, 0.2},
	}}
	index := NewSemanticIndex(embedder)

	docs := map[string]string{
		"email:1": "quarterly budget review",
		"email:2": "team lunch friday",
		"email:3": "finance planning for 2026",
	}
	for key, text := range docs {
		if err := index.Upsert(ctx, key, text); err != nil {
			t.Fatalf("Upsert %s: %v", key, err)
		}
	}
	if index.Len() != 3 {
		t.Fatalf("expected 3 indexed docs, got %d", index.Len())
	}

	matches, err := index.Search(ctx, "budget meeting", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Key != "email:1" {
		t.Fatalf("top match = %s, want email:1", matches[0].Key)
	}
	if matches[0].Score <= matches[1].Score {
		t.Fatalf("matches not sorted by score: %+v", matches)
	}
}

func TestSemanticIndexUpsertFailureIsReported(t *testing.T) {
	ctx := context.Background()
	index := NewSemanticIndex(&stubEmbedder{err: errors.New("model offline")})

	if err := index.Upsert(ctx, "email:1", "text"); err == nil {
		t.Fatalf("expected error from failing embedder")
	}
	if index.Len() != 0 {
		t.Fatalf("failed upsert must not index")
	}
}

func TestSemanticIndexRemove(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{"doc": {1, 0}}}
	index := NewSemanticIndex(embedder)

	if err := index.Upsert(ctx, "email:1", "doc"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	index.Remove("email:1")
	if index.Len() != 0 {
		t.Fatalf("expected empty index after remove")
	}
}

func TestSemanticIndexEmptyTextIsSkipped(t *testing.T) {
	index := NewSemanticIndex(&stubEmbedder{err: errors.New("should not be called")})
	if err := index.Upsert(context.Background(), "email:1", ""); err != nil {
		t.Fatalf("empty text must be a no-op: %v", err)
	}
}
