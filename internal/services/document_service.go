package services

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// DocumentService stores uploaded bytes in object storage and keeps the
// document record. Documents are immutable once ingestion starts.
type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket}
}

func (s *DocumentService) UploadAndCreate(ctx context.Context, filename, contentType string, data []byte, sourceType string) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		FileName:    filename,
		StorageURL:  url,
		ContentType: contentType,
		SourceType:  sourceType,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	return s.db.ListDocuments(ctx)
}

// Chunks returns the document's stored chunks in index order.
func (s *DocumentService) Chunks(ctx context.Context, docID string) ([]models.DocumentChunk, error) {
	return s.db.GetChunksByDocument(ctx, docID)
}

// Delete removes the stored object and the document record; chunks,
// embeddings, and the job cascade with it. A document whose job is still
// processing cannot be deleted.
func (s *DocumentService) Delete(ctx context.Context, docID string) error {
	job, err := s.db.GetJobByDocument(ctx, docID)
	if err != nil {
		return err
	}
	if job != nil && job.Status == models.JobStatusProcessing {
		return core.ErrJobRunning
	}

	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	key := s.objectKey(doc.ID, doc.FileName)
	if err := s.storage.DeleteFile(ctx, s.bucket, key); err != nil {
		return err
	}
	return s.db.DeleteDocument(ctx, docID)
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("documents", docID, filename)
}
