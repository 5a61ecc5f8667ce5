// Package coretest provides an in-memory core.DbClient for package tests.
package coretest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// FakeStore implements core.DbClient over maps. It mirrors the SQL
// client's semantics where tests depend on them: the job upsert CAS,
// monotonic progress, and cascade deletion of embeddings with chunks.
type FakeStore struct {
	mu sync.Mutex

	Documents  map[string]models.Document
	Jobs       map[string]models.ProcessingJob  // keyed by document ID
	Chunks     map[string][]models.DocumentChunk // keyed by document ID
	Embeddings map[string]models.ChunkEmbedding  // keyed by chunk ID

	// EmbedDim, when positive, is enforced on embedding inserts.
	EmbedDim int

	// ProgressLog records every progress value written per document, in
	// order, so tests can assert monotonicity over a run.
	ProgressLog map[string][]int
}

var _ core.DbClient = (*FakeStore)(nil)

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Documents:   make(map[string]models.Document),
		Jobs:        make(map[string]models.ProcessingJob),
		Chunks:      make(map[string][]models.DocumentChunk),
		Embeddings:  make(map[string]models.ChunkEmbedding),
		ProgressLog: make(map[string][]int),
	}
}

func (f *FakeStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Documents[doc.ID] = *doc
	return nil
}

func (f *FakeStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *FakeStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Document, 0, len(f.Documents))
	for _, d := range f.Documents {
		out = append(out, d)
	}
	return out, nil
}

func (f *FakeStore) DeleteDocument(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.Chunks[id] {
		delete(f.Embeddings, ch.ID)
	}
	delete(f.Chunks, id)
	delete(f.Jobs, id)
	delete(f.Documents, id)
	return nil
}

func (f *FakeStore) ResetJob(ctx context.Context, documentID string, config map[string]any) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	if existing, ok := f.Jobs[documentID]; ok {
		if existing.Status == models.JobStatusProcessing {
			return nil, core.ErrJobRunning
		}
		// Overwrite in place; the job ID is stable across retriggers.
		existing.Status = models.JobStatusPending
		existing.Progress = 0
		existing.Details = ""
		existing.ErrorMessage = ""
		existing.Config = config
		existing.StartedAt = nil
		existing.CompletedAt = nil
		existing.UpdatedAt = now
		f.Jobs[documentID] = existing
		return &existing, nil
	}

	job := models.ProcessingJob{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Status:     models.JobStatusPending,
		Config:     config,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.Jobs[documentID] = job
	return &job, nil
}

func (f *FakeStore) GetJobByDocument(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[documentID]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (f *FakeStore) MarkJobProcessing(ctx context.Context, documentID string, progress int, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[documentID]
	if !ok {
		return fmt.Errorf("job not found for document: %s", documentID)
	}
	// Pending-only claim, same CAS the SQL client applies.
	if j.Status != models.JobStatusPending {
		return core.ErrJobRunning
	}
	now := time.Now()
	j.Status = models.JobStatusProcessing
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Details = details
	j.ErrorMessage = ""
	j.StartedAt = &now
	j.UpdatedAt = now
	f.Jobs[documentID] = j
	f.ProgressLog[documentID] = append(f.ProgressLog[documentID], j.Progress)
	return nil
}

func (f *FakeStore) UpdateJobProgress(ctx context.Context, documentID string, progress int, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[documentID]
	if !ok {
		return fmt.Errorf("job not found for document: %s", documentID)
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Details = details
	j.UpdatedAt = time.Now()
	f.Jobs[documentID] = j
	f.ProgressLog[documentID] = append(f.ProgressLog[documentID], j.Progress)
	return nil
}

func (f *FakeStore) CompleteJob(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[documentID]
	if !ok {
		return fmt.Errorf("job not found for document: %s", documentID)
	}
	now := time.Now()
	j.Status = models.JobStatusCompleted
	j.Progress = 100
	j.Details = "done"
	j.CompletedAt = &now
	j.UpdatedAt = now
	f.Jobs[documentID] = j
	f.ProgressLog[documentID] = append(f.ProgressLog[documentID], 100)
	return nil
}

func (f *FakeStore) FailJob(ctx context.Context, documentID string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[documentID]
	if !ok {
		return fmt.Errorf("job not found for document: %s", documentID)
	}
	now := time.Now()
	j.Status = models.JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
	f.Jobs[documentID] = j
	return nil
}

func (f *FakeStore) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, old := range f.Chunks[documentID] {
		delete(f.Embeddings, old.ID)
	}
	f.Chunks[documentID] = append([]models.DocumentChunk(nil), chunks...)
	return nil
}

func (f *FakeStore) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.DocumentChunk(nil), f.Chunks[documentID]...)
	sort.Slice(out, func(a, b int) bool { return out[a].ChunkIndex < out[b].ChunkIndex })
	return out, nil
}

func (f *FakeStore) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Chunks[documentID]), nil
}

func (f *FakeStore) InsertChunkEmbedding(ctx context.Context, emb *models.ChunkEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EmbedDim > 0 && len(emb.Vector) != f.EmbedDim {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(emb.Vector), f.EmbedDim)
	}
	f.Embeddings[emb.ChunkID] = *emb
	return nil
}

func (f *FakeStore) CountEmbeddingsByDocument(ctx context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ch := range f.Chunks[documentID] {
		if _, ok := f.Embeddings[ch.ID]; ok {
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) ListEmbeddedChunks(ctx context.Context, documentIDs []string) ([]models.SearchCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.SearchCandidate
	for docID, chunks := range f.Chunks {
		if !matchesFilter(docID, documentIDs) {
			continue
		}
		doc := f.Documents[docID]
		for _, ch := range chunks {
			emb, ok := f.Embeddings[ch.ID]
			if !ok {
				continue
			}
			out = append(out, candidate(doc, ch, emb.Vector))
		}
	}
	return out, nil
}

func (f *FakeStore) MatchChunksByText(ctx context.Context, query string, documentIDs []string, limit int) ([]models.SearchCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	needle := strings.ToLower(query)
	var out []models.SearchCandidate
	for docID, chunks := range f.Chunks {
		if !matchesFilter(docID, documentIDs) {
			continue
		}
		doc := f.Documents[docID]
		for _, ch := range chunks {
			if !strings.Contains(strings.ToLower(ch.Content), needle) {
				continue
			}
			out = append(out, candidate(doc, ch, nil))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].WordCount > out[b].WordCount })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeStore) Ping(ctx context.Context) error { return nil }

func (f *FakeStore) Close() error { return nil }

func matchesFilter(docID string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, id := range filter {
		if id == docID {
			return true
		}
	}
	return false
}

func candidate(doc models.Document, ch models.DocumentChunk, vec []float32) models.SearchCandidate {
	return models.SearchCandidate{
		ChunkID:      ch.ID,
		DocumentID:   ch.DocumentID,
		DocumentName: doc.FileName,
		DocumentType: doc.ContentType,
		Content:      ch.Content,
		WordCount:    ch.WordCount,
		PageStart:    ch.PageStart,
		PageEnd:      ch.PageEnd,
		Vector:       vec,
	}
}
