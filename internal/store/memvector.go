package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// MemoryVectorStore is an in-process vectorstores.VectorStore backed by a
// brute-force cosine scan. It holds the reference corpus for hybrid
// search; corpora are expected to fit comfortably in memory.
type MemoryVectorStore struct {
	mu       sync.RWMutex
	embedder embeddings.Embedder
	docs     []storedDoc
}

type storedDoc struct {
	id     string
	doc    schema.Document
	vector []float32
}

var _ vectorstores.VectorStore = (*MemoryVectorStore)(nil)

func NewMemoryVectorStore(embedder embeddings.Embedder) *MemoryVectorStore {
	return &MemoryVectorStore{embedder: embedder}
}

func (s *MemoryVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	ids := make([]string, len(docs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		id := uuid.NewString()
		ids[i] = id
		s.docs = append(s.docs, storedDoc{id: id, doc: doc, vector: vectors[i]})
	}
	return ids, nil
}

func (s *MemoryVectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, _ ...vectorstores.Option) ([]schema.Document, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	scored := make([]schema.Document, 0, len(s.docs))
	for _, sd := range s.docs {
		doc := sd.doc
		doc.Score = cosineSimilarity(vector, sd.vector)
		scored = append(scored, doc)
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if numDocuments < len(scored) {
		scored = scored[:numDocuments]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
