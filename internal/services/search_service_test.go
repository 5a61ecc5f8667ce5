package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/coretest"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// queryEmbedder returns a fixed vector for every input, letting tests
// control similarity through what is stored, not what is asked.
type queryEmbedder struct {
	vec []float32
}

func (e *queryEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *queryEmbedder) Dimension() int    { return len(e.vec) }
func (e *queryEmbedder) ModelName() string { return "fake-embedder" }

func seedDocument(t *testing.T, store *coretest.FakeStore, docID string) {
	t.Helper()
	require.NoError(t, store.CreateDocument(context.Background(), &models.Document{
		ID:          docID,
		FileName:    docID + ".pdf",
		ContentType: "application/pdf",
	}))
}

func seedChunk(t *testing.T, store *coretest.FakeStore, docID, chunkID, content string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	chunks := append(store.Chunks[docID], models.DocumentChunk{
		ID:         chunkID,
		DocumentID: docID,
		ChunkIndex: len(store.Chunks[docID]),
		Content:    content,
		WordCount:  len(content) / 5,
	})
	store.Chunks[docID] = chunks
	if vec != nil {
		require.NoError(t, store.InsertChunkEmbedding(ctx, &models.ChunkEmbedding{
			ID: "emb-" + chunkID, ChunkID: chunkID, Vector: vec,
		}))
	}
}

func threshold(v float64) *float64 { return &v }

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, cosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity(a, []float32{-1, 0, 0}), 1e-9)

	// Symmetry.
	x := []float32{0.3, 0.7, 0.2}
	y := []float32{0.9, 0.1, 0.4}
	assert.InDelta(t, cosineSimilarity(x, y), cosineSimilarity(y, x), 1e-9)

	// Zero-norm vectors score 0 instead of dividing by zero.
	assert.Zero(t, cosineSimilarity(a, []float32{0, 0, 0}))
	assert.Zero(t, cosineSimilarity(nil, a))

	// Mismatched lengths score 0 rather than an inflated prefix score.
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, cosineSimilarity([]float32{1, 0, 0, 0}, a))
}

func TestSemanticSearchRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	seedDocument(t, store, "doc-1")
	seedChunk(t, store, "doc-1", "c-close", "steam turbine maintenance", []float32{1, 0.05, 0})
	seedChunk(t, store, "doc-1", "c-mid", "boiler inspection notes", []float32{0.8, 0.6, 0})
	seedChunk(t, store, "doc-1", "c-far", "cafeteria menu", []float32{0, 1, 0})
	seedChunk(t, store, "doc-1", "c-no-vec", "unembedded chunk", nil)

	svc := NewSearchService(store, &queryEmbedder{vec: []float32{1, 0, 0}}, zap.NewNop())
	resp, err := svc.Search(ctx, SearchRequest{Query: "turbine", Threshold: threshold(0.7)})
	require.NoError(t, err)

	assert.Equal(t, MethodSemantic, resp.SearchMethod)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c-close", resp.Results[0].ChunkID)
	assert.Equal(t, "c-mid", resp.Results[1].ChunkID)
	assert.Greater(t, resp.Results[0].Similarity, resp.Results[1].Similarity)
	assert.GreaterOrEqual(t, resp.Results[1].Similarity, 0.7)
	assert.Equal(t, "doc-1.pdf", resp.Results[0].Document.Name)
}

func TestSemanticSearchLimitAndThreshold(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	seedDocument(t, store, "doc-1")
	for i, id := range []string{"c1", "c2", "c3"} {
		seedChunk(t, store, "doc-1", id, "content", []float32{1, float32(i+1) * 0.1, 0})
	}

	svc := NewSearchService(store, &queryEmbedder{vec: []float32{1, 0, 0}}, zap.NewNop())

	resp, err := svc.Search(ctx, SearchRequest{Query: "q", Limit: 2, Threshold: threshold(0.1)})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	// Threshold above every score yields an empty, explained result set.
	resp, err = svc.Search(ctx, SearchRequest{Query: "q", Threshold: threshold(0.999999)})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotEmpty(t, resp.Message)
}

func TestSemanticSearchExplicitZeroThreshold(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	seedDocument(t, store, "doc-1")
	seedChunk(t, store, "doc-1", "c-aligned", "aligned", []float32{1, 0, 0})
	seedChunk(t, store, "doc-1", "c-orthogonal", "orthogonal", []float32{0, 1, 0})

	svc := NewSearchService(store, &queryEmbedder{vec: []float32{1, 0, 0}}, zap.NewNop())

	// An explicit 0 includes everything; only a nil threshold selects
	// the 0.7 default.
	resp, err := svc.Search(ctx, SearchRequest{Query: "q", Threshold: threshold(0)})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	resp, err = svc.Search(ctx, SearchRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c-aligned", resp.Results[0].ChunkID)
}

func TestSemanticSearchDocumentFilter(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	seedDocument(t, store, "doc-1")
	seedDocument(t, store, "doc-2")
	seedChunk(t, store, "doc-1", "c1", "alpha", []float32{1, 0, 0})
	seedChunk(t, store, "doc-2", "c2", "beta", []float32{1, 0, 0})

	svc := NewSearchService(store, &queryEmbedder{vec: []float32{1, 0, 0}}, zap.NewNop())
	resp, err := svc.Search(ctx, SearchRequest{Query: "q", DocumentIDs: []string{"doc-2"}})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c2", resp.Results[0].ChunkID)
	assert.Equal(t, "doc-2", resp.Results[0].Document.ID)
}

func TestSemanticSearchNoEmbeddings(t *testing.T) {
	store := coretest.NewFakeStore()
	seedDocument(t, store, "doc-1")
	seedChunk(t, store, "doc-1", "c1", "text only", nil)

	svc := NewSearchService(store, &queryEmbedder{vec: []float32{1, 0, 0}}, zap.NewNop())
	resp, err := svc.Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, MethodSemantic, resp.SearchMethod)
	assert.Empty(t, resp.Results)
	assert.NotEmpty(t, resp.Message)
}

func TestLexicalFallback(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	seedDocument(t, store, "doc-1")
	seedChunk(t, store, "doc-1", "c1", "routine turbine maintenance schedule and parts list", nil)
	seedChunk(t, store, "doc-1", "c2", "turbine overview", nil)
	seedChunk(t, store, "doc-1", "c3", "unrelated content", nil)

	svc := NewSearchService(store, nil, zap.NewNop())
	resp, err := svc.Search(ctx, SearchRequest{Query: "Turbine"})
	require.NoError(t, err)

	assert.Equal(t, MethodText, resp.SearchMethod)
	require.Len(t, resp.Results, 2)
	// Larger chunks rank first; every match carries the placeholder score.
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	for _, r := range resp.Results {
		assert.Equal(t, placeholderSimilarity, r.Similarity)
	}

	resp, err = svc.Search(ctx, SearchRequest{Query: "nonexistent phrase"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotEmpty(t, resp.Message)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := NewSearchService(coretest.NewFakeStore(), nil, zap.NewNop())
	_, err := svc.Search(context.Background(), SearchRequest{Query: ""})
	assert.Error(t, err)
}
