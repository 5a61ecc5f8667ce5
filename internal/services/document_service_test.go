package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/coretest"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// recordingObjectClient keeps objects in a map so tests can observe
// uploads and deletes.
type recordingObjectClient struct {
	objects map[string][]byte
	deleted []string
}

func newRecordingObjectClient() *recordingObjectClient {
	return &recordingObjectClient{objects: make(map[string][]byte)}
}

func (c *recordingObjectClient) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	c.objects[key] = data
	return "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key, nil
}

func (c *recordingObjectClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return c.objects[key], nil
}

func (c *recordingObjectClient) DeleteFile(ctx context.Context, bucket, key string) error {
	delete(c.objects, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func TestUploadAndCreate(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := newRecordingObjectClient()
	svc := NewDocumentService(store, obj, "docs")

	doc, err := svc.UploadAndCreate(ctx, "annual report.pdf", "application/pdf", []byte("%PDF"), "upload")
	require.NoError(t, err)

	// Spaces in the filename are sanitized in the object key but kept in
	// the record.
	key := "documents/" + doc.ID + "/annual_report.pdf"
	assert.Contains(t, obj.objects, key)
	assert.Equal(t, "annual report.pdf", doc.FileName)

	stored, err := store.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, doc.StorageURL, stored.StorageURL)
}

func TestDeleteDocumentRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := newRecordingObjectClient()
	svc := NewDocumentService(store, obj, "docs")

	doc, err := svc.UploadAndCreate(ctx, "report.pdf", "application/pdf", []byte("%PDF"), "upload")
	require.NoError(t, err)

	jobs := NewJobService(store, zap.NewNop())
	_, err = jobs.Reset(ctx, doc.ID, nil)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceDocumentChunks(ctx, doc.ID, []models.DocumentChunk{
		{ID: "c1", DocumentID: doc.ID, ChunkIndex: 0, Content: "text", WordCount: 1},
	}))
	require.NoError(t, store.InsertChunkEmbedding(ctx, &models.ChunkEmbedding{
		ID: "e1", ChunkID: "c1", Vector: []float32{1},
	}))

	require.NoError(t, svc.Delete(ctx, doc.ID))

	assert.Contains(t, obj.deleted, "documents/"+doc.ID+"/report.pdf")
	assert.Empty(t, store.Documents)
	assert.Empty(t, store.Jobs)
	assert.Empty(t, store.Chunks)
	assert.Empty(t, store.Embeddings)
}

func TestDeleteDocumentRejectedWhileProcessing(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	obj := newRecordingObjectClient()
	svc := NewDocumentService(store, obj, "docs")

	doc, err := svc.UploadAndCreate(ctx, "report.pdf", "application/pdf", []byte("%PDF"), "upload")
	require.NoError(t, err)

	jobs := NewJobService(store, zap.NewNop())
	_, err = jobs.Reset(ctx, doc.ID, nil)
	require.NoError(t, err)
	require.NoError(t, jobs.MarkProcessing(ctx, doc.ID))

	assert.ErrorIs(t, svc.Delete(ctx, doc.ID), core.ErrJobRunning)
	assert.Len(t, store.Documents, 1)
	assert.Empty(t, obj.deleted)

	// After the run finishes the delete goes through.
	require.NoError(t, jobs.Complete(ctx, doc.ID))
	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Empty(t, store.Documents)
}

func TestDocumentChunksOrdered(t *testing.T) {
	ctx := context.Background()
	store := coretest.NewFakeStore()
	svc := NewDocumentService(store, newRecordingObjectClient(), "docs")

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc-1", []models.DocumentChunk{
		{ID: "c2", DocumentID: "doc-1", ChunkIndex: 1, Content: "second", WordCount: 1},
		{ID: "c1", DocumentID: "doc-1", ChunkIndex: 0, Content: "first", WordCount: 1},
	}))

	chunks, err := svc.Chunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c1", chunks[0].ID)
	assert.Equal(t, "c2", chunks[1].ID)
}
