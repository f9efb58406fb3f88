package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type fakeStore struct {
	added    []Document
	deleted  []map[string]any
	searched map[string]any
	topK     int
	results  []SimilaritySearchResult
}

func (f *fakeStore) AddDocuments(_ context.Context, docs []Document) error {
	f.added = append(f.added, docs...)
	return nil
}

func (f *fakeStore) SimilaritySearch(_ context.Context, _ []float32, topK int, filter map[string]any) ([]SimilaritySearchResult, error) {
	f.topK = topK
	f.searched = filter
	return f.results, nil
}

func (f *fakeStore) DeleteByMetadata(_ context.Context, filter map[string]any) (int64, error) {
	f.deleted = append(f.deleted, filter)
	return 0, nil
}

func TestIndexLearnings(t *testing.T) {
	store := &fakeStore{}
	li := &LearningIndex{store: store, embedder: &fakeEmbedder{}}

	err := li.IndexLearnings(context.Background(), "job-1", "fusion", []string{"ITER is in France.", " ", "NIF hit ignition."})
	require.NoError(t, err)

	require.Len(t, store.added, 2)
	assert.Equal(t, "ITER is in France.", store.added[0].Content)
	assert.Equal(t, map[string]any{"job_id": "job-1", "query": "fusion"}, store.added[1].Metadata)
	assert.Equal(t, []float32{17}, store.added[1].Embedding)
	assert.Equal(t, []map[string]any{{"job_id": "job-1"}}, store.deleted, "re-indexing replaces earlier rows")
}

func TestIndexLearningsEmbedFailure(t *testing.T) {
	store := &fakeStore{}
	li := &LearningIndex{store: store, embedder: &fakeEmbedder{err: errors.New("quota")}}

	err := li.IndexLearnings(context.Background(), "job-1", "q", []string{"x"})
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, store.added)
}

func TestSearchLearnings(t *testing.T) {
	store := &fakeStore{results: []SimilaritySearchResult{
		{Document: Document{Content: "close"}, Score: 0.9},
		{Document: Document{Content: "far"}, Score: 0.2},
	}}
	li := &LearningIndex{store: store, embedder: &fakeEmbedder{}}

	got, err := li.Search(context.Background(), "job-7", "what is close?", 0)
	require.NoError(t, err)
	assert.Equal(t, []LearningMatch{{"close", 0.9}, {"far", 0.2}}, got)
	assert.Equal(t, DefaultTopK, store.topK)
	assert.Equal(t, map[string]any{"job_id": "job-7"}, store.searched)

	_, err = li.Search(context.Background(), "job-7", "q", 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxTopK, store.topK)

	_, err = li.Search(context.Background(), "job-7", "  ", 3)
	assert.Error(t, err)
}
