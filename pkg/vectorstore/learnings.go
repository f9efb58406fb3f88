package vectorstore

import (
	"context"
	"fmt"
	"strings"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type documentStore interface {
	AddDocuments(ctx context.Context, docs []Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]SimilaritySearchResult, error)
	DeleteByMetadata(ctx context.Context, filter map[string]any) (int64, error)
}

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// LearningMatch is one learning returned by a semantic search.
type LearningMatch struct {
	Learning string  `json:"learning"`
	Score    float64 `json:"score"`
}

// LearningIndex stores the learnings of finished jobs for semantic search.
type LearningIndex struct {
	store    documentStore
	embedder Embedder
}

// NewLearningIndex creates an index over store using embedder.
func NewLearningIndex(store *PGVectorStore, embedder Embedder) *LearningIndex {
	return &LearningIndex{store: store, embedder: embedder}
}

// IndexLearnings replaces the indexed learnings of jobID.
func (li *LearningIndex) IndexLearnings(ctx context.Context, jobID, query string, learnings []string) error {
	filter := map[string]any{"job_id": jobID}
	if _, err := li.store.DeleteByMetadata(ctx, filter); err != nil {
		return fmt.Errorf("clear previous learnings: %w", err)
	}

	texts := make([]string, 0, len(learnings))
	for _, l := range learnings {
		if strings.TrimSpace(l) != "" {
			texts = append(texts, l)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := li.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed learnings: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d learnings", len(vectors), len(texts))
	}

	docs := make([]Document, len(texts))
	for i, text := range texts {
		docs[i] = Document{
			Content:   text,
			Metadata:  map[string]any{"job_id": jobID, "query": query},
			Embedding: vectors[i],
		}
	}
	if err := li.store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("store learnings: %w", err)
	}
	return nil
}

// Search returns the learnings of jobID closest to text. topK is clamped to
// [1, MaxTopK] with DefaultTopK for zero.
func (li *LearningIndex) Search(ctx context.Context, jobID, text string, topK int) ([]LearningMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("search text is empty")
	}
	switch {
	case topK <= 0:
		topK = DefaultTopK
	case topK > MaxTopK:
		topK = MaxTopK
	}

	vec, err := li.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed search text: %w", err)
	}

	results, err := li.store.SimilaritySearch(ctx, vec, topK, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, err
	}

	matches := make([]LearningMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, LearningMatch{Learning: r.Document.Content, Score: r.Score})
	}
	return matches, nil
}
