package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns text into a vector. Implementations may call a remote model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig configures the OpenAI-compatible embedding client.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type openaiEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder against an OpenAI-compatible endpoint.
func NewOpenAIEmbedder(cfg EmbedderConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedder requires an api key")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &openaiEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(model),
	}, nil
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response empty")
	}
	return resp.Data[0].Embedding, nil
}

// Match is one semantic search hit.
type Match struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// SemanticIndex maintains an in-memory vector index over cached documents,
// keyed by the same identifiers as the primary cache. All writes are
// best-effort: an embedding failure is reported but must never fail the
// caller's primary operation.
type SemanticIndex struct {
	embedder Embedder

	mutex   sync.RWMutex
	vectors map[string][]float32
}

// NewSemanticIndex builds an index over the given embedder.
func NewSemanticIndex(embedder Embedder) *SemanticIndex {
	return &SemanticIndex{
		embedder: embedder,
		vectors:  make(map[string][]float32),
	}
}

// Upsert indexes the textual representation of a cached document.
func (s *SemanticIndex) Upsert(ctx context.Context, key, text string) error {
	if text == "" {
		return nil
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("index %s: %w", key, err)
	}

	s.mutex.Lock()
	s.vectors[key] = vector
	s.mutex.Unlock()
	return nil
}

// Remove drops a document from the index.
func (s *SemanticIndex) Remove(key string) {
	s.mutex.Lock()
	delete(s.vectors, key)
	s.mutex.Unlock()
}

// Search returns the topK nearest documents to the free-text query by cosine
// similarity.
func (s *SemanticIndex) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mutex.RLock()
	matches := make([]Match, 0, len(s.vectors))
	for key, vector := range s.vectors {
		matches = append(matches, Match{Key: key, Score: cosineSimilarity(queryVec, vector)})
	}
	s.mutex.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len reports the number of indexed documents.
func (s *SemanticIndex) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.vectors)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
