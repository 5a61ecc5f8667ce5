package core

import (
	"context"
	"errors"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// ErrJobRunning is returned when an operation collides with the
// document's active job: a retrigger while it is processing, or a
// duplicate run losing the pending-to-processing claim.
var ErrJobRunning = errors.New("a processing job is already running for this document")

// ErrDimensionMismatch is returned when a vector's length does not match
// the configured embedding dimension at write time.
var ErrDimensionMismatch = errors.New("embedding vector dimension mismatch")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	// DeleteDocument removes the record; chunks, embeddings, and the job
	// go with it via cascade.
	DeleteDocument(ctx context.Context, id string) error

	// ResetJob upserts the document's job back to the pending baseline.
	// It refuses with ErrJobRunning while the current job is processing.
	ResetJob(ctx context.Context, documentID string, config map[string]any) (*models.ProcessingJob, error)
	GetJobByDocument(ctx context.Context, documentID string) (*models.ProcessingJob, error)
	MarkJobProcessing(ctx context.Context, documentID string, progress int, details string) error
	UpdateJobProgress(ctx context.Context, documentID string, progress int, details string) error
	CompleteJob(ctx context.Context, documentID string) error
	FailJob(ctx context.Context, documentID string, errMsg string) error

	// ReplaceDocumentChunks deletes the document's prior chunks (embeddings
	// cascade) and inserts the new set in one transaction.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	CountChunksByDocument(ctx context.Context, documentID string) (int, error)

	InsertChunkEmbedding(ctx context.Context, emb *models.ChunkEmbedding) error
	CountEmbeddingsByDocument(ctx context.Context, documentID string) (int, error)

	// ListEmbeddedChunks loads embedding vectors joined with chunk and
	// document fields, optionally restricted to the given document IDs.
	ListEmbeddedChunks(ctx context.Context, documentIDs []string) ([]models.SearchCandidate, error)
	// MatchChunksByText runs a lexical match on chunk content, optionally
	// restricted to the given document IDs, ordered by chunk size.
	MatchChunksByText(ctx context.Context, query string, documentIDs []string, limit int) ([]models.SearchCandidate, error)

	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// Abstract so AWS can be swapped for MinIO, GCS, etc.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
