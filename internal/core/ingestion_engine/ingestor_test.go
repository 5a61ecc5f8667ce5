package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/coretest"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/services"
)

type fakeObjectClient struct {
	data map[string][]byte
	err  error
}

func (f *fakeObjectClient) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	return "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key, nil
}

func (f *fakeObjectClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[key], nil
}

func (f *fakeObjectClient) DeleteFile(ctx context.Context, bucket, key string) error {
	return nil
}

type stubPageExtractor struct {
	pages []core.Page
	err   error
}

func (s *stubPageExtractor) ExtractPages(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	return s.pages, s.err
}

func newTestIngestor(store *coretest.FakeStore, obj core.ObjectClient, ext core.PageExtractor, embedder core.EmbeddingProvider) (*DocumentIngestor, *services.JobService) {
	log := zap.NewNop()
	tracker := services.NewJobService(store, log)
	pipeline := NewEmbeddingPipeline(store, embedder, tracker, semaphore.NewWeighted(2), 0, log)
	cfg := &IngestConfig{TargetWords: 5, OverlapWords: 1}
	return NewDocumentIngestor(store, obj, ext, pipeline, tracker, cfg, log), tracker
}

func seedDoc(t *testing.T, store *coretest.FakeStore, tracker *services.JobService, docID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateDocument(ctx, &models.Document{
		ID:          docID,
		FileName:    "report.pdf",
		StorageURL:  "https://docs.s3.us-east-2.amazonaws.com/documents/" + docID + "/report.pdf",
		ContentType: "application/pdf",
	}))
	_, err := tracker.Reset(ctx, docID, nil)
	require.NoError(t, err)
}

func TestProcessOneHappyPath(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{data: map[string][]byte{
		"documents/doc-1/report.pdf": []byte("%PDF"),
	}}
	ext := &stubPageExtractor{pages: []core.Page{
		{Number: 1, Text: strings.Repeat("alpha ", 12)},
		{Number: 2, Text: strings.Repeat("beta ", 4)},
	}}
	embedder := &flakyEmbedder{dim: 4}

	ing, tracker := newTestIngestor(store, obj, ext, embedder)
	seedDoc(t, store, tracker, "doc-1")

	require.NoError(t, ing.ProcessOne(ctx, "doc-1"))

	job, err := store.GetJobByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	// Page 1 (12 words, target 5, overlap 1): windows at 0,4,8 -> 3
	// chunks. Page 2 (4 words): 1 chunk. Indices contiguous across pages.
	chunks, err := store.GetChunksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, 2, chunks[3].PageStart)
	assert.Equal(t, 3, chunks[3].ChunkIndex)
	assert.Len(t, store.Embeddings, 4)

	// Stage checkpoints never regress.
	log := store.ProgressLog["doc-1"]
	require.NotEmpty(t, log)
	for i := 1; i < len(log); i++ {
		assert.GreaterOrEqual(t, log[i], log[i-1])
	}
}

func TestProcessOneDownloadFailure(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{err: errors.New("object not found")}

	ing, tracker := newTestIngestor(store, obj, &stubPageExtractor{}, nil)
	seedDoc(t, store, tracker, "doc-1")

	err := ing.ProcessOne(ctx, "doc-1")
	require.Error(t, err)

	job, jerr := store.GetJobByDocument(ctx, "doc-1")
	require.NoError(t, jerr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "download source")
	assert.NotNil(t, job.CompletedAt)
}

func TestProcessOneExtractionFailure(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{data: map[string][]byte{"documents/doc-1/report.pdf": []byte("%PDF")}}
	ext := &stubPageExtractor{err: errors.New("corrupt file")}

	ing, tracker := newTestIngestor(store, obj, ext, nil)
	seedDoc(t, store, tracker, "doc-1")

	require.Error(t, ing.ProcessOne(ctx, "doc-1"))

	job, err := store.GetJobByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "extract text")
}

func TestProcessOneUnknownDocument(t *testing.T) {
	store := coretest.NewFakeStore()
	ing, _ := newTestIngestor(store, &fakeObjectClient{}, &stubPageExtractor{}, nil)

	err := ing.ProcessOne(context.Background(), "missing")
	assert.Error(t, err)
}

func TestProcessOneDegradedModeCompletes(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{data: map[string][]byte{"documents/doc-1/report.pdf": []byte("%PDF")}}
	ext := &stubPageExtractor{pages: []core.Page{{Number: 1, Text: strings.Repeat("word ", 8)}}}

	ing, tracker := newTestIngestor(store, obj, ext, nil)
	seedDoc(t, store, tracker, "doc-1")

	require.NoError(t, ing.ProcessOne(ctx, "doc-1"))

	job, err := store.GetJobByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotEmpty(t, store.Chunks["doc-1"])
	assert.Empty(t, store.Embeddings)
}

func TestReprocessReplacesChunks(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{data: map[string][]byte{"documents/doc-1/report.pdf": []byte("%PDF")}}
	ext := &stubPageExtractor{pages: []core.Page{{Number: 1, Text: strings.Repeat("one ", 9)}}}
	embedder := &flakyEmbedder{dim: 4}

	ing, tracker := newTestIngestor(store, obj, ext, embedder)
	seedDoc(t, store, tracker, "doc-1")
	require.NoError(t, ing.ProcessOne(ctx, "doc-1"))

	firstIDs := make(map[string]bool)
	for _, ch := range store.Chunks["doc-1"] {
		firstIDs[ch.ID] = true
	}

	// Retrigger with different source text; old chunks and their
	// embeddings must be gone afterwards.
	ext.pages = []core.Page{{Number: 1, Text: strings.Repeat("two ", 5)}}
	_, err := tracker.Reset(ctx, "doc-1", nil)
	require.NoError(t, err)
	require.NoError(t, ing.ProcessOne(ctx, "doc-1"))

	chunks := store.Chunks["doc-1"]
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.False(t, firstIDs[ch.ID])
		assert.Contains(t, ch.Content, "two")
	}
	assert.Len(t, store.Embeddings, len(chunks))
}

func TestDuplicateQueueEntriesRunOnce(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{data: map[string][]byte{"documents/doc-1/report.pdf": []byte("%PDF")}}
	// 8 words, target 5, overlap 1: windows at 0 and 4 -> 2 chunks.
	ext := &stubPageExtractor{pages: []core.Page{{Number: 1, Text: strings.Repeat("word ", 8)}}}
	embedder := &flakyEmbedder{dim: 4}

	ing, tracker := newTestIngestor(store, obj, ext, embedder)
	seedDoc(t, store, tracker, "doc-1")

	// A retrigger while the job is still pending is accepted, leaving
	// the document queued twice.
	_, err := tracker.Reset(ctx, "doc-1", nil)
	require.NoError(t, err)

	// Both queue entries are picked up; only one run may claim the job.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for n := 0; n < 2; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = ing.ProcessOne(ctx, "doc-1")
		}(n)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	job, err := store.GetJobByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	// Exactly one pipeline ran: one provider call per chunk, one
	// embedding per chunk, no duplicate inserts.
	assert.Equal(t, 2, embedder.calls)
	assert.Len(t, store.Chunks["doc-1"], 2)
	assert.Len(t, store.Embeddings, 2)
}

func TestProcessOneSkipsAlreadyClaimedJob(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := &fakeObjectClient{data: map[string][]byte{"documents/doc-1/report.pdf": []byte("%PDF")}}
	ext := &stubPageExtractor{pages: []core.Page{{Number: 1, Text: strings.Repeat("word ", 8)}}}

	ing, tracker := newTestIngestor(store, obj, ext, nil)
	seedDoc(t, store, tracker, "doc-1")
	require.NoError(t, tracker.MarkProcessing(ctx, "doc-1"))

	// The claim is already held, so this run is a no-op, not a failure.
	require.NoError(t, ing.ProcessOne(ctx, "doc-1"))

	job, err := store.GetJobByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Empty(t, store.Chunks["doc-1"])
}

func TestParseS3URL(t *testing.T) {
	bucket, key := parseS3URL("https://my-bucket.s3.us-east-2.amazonaws.com/documents/abc/report.pdf")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "documents/abc/report.pdf", key)

	bucket, key = parseS3URL("https://solo.s3.amazonaws.com/")
	assert.Equal(t, "solo", bucket)
	assert.Equal(t, "", key)
}
