package models

import (
	"time"
)

// JobStatus is the lifecycle state of a document's processing job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job reached a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Document represents an uploaded document whose bytes live in object storage.
type Document struct {
	ID          string    `db:"id" json:"id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	ContentType string    `db:"content_type" json:"content_type"`
	SourceType  string    `db:"source_type" json:"source_type"` // "upload" or "url"
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessingJob tracks ingestion progress for exactly one document.
// The document_id column carries a unique constraint, so a retrigger
// overwrites the prior record instead of appending a new one.
type ProcessingJob struct {
	ID           string         `db:"id" json:"id"`
	DocumentID   string         `db:"document_id" json:"document_id"`
	Status       JobStatus      `db:"status" json:"status"`
	Progress     int            `db:"progress" json:"progress"`
	Details      string         `db:"details" json:"details,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	Config       map[string]any `db:"config" json:"config,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	StartedAt    *time.Time     `db:"started_at" json:"started_at,omitempty"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// DocumentChunk is one word-window of a document's text. Chunks are
// immutable; a reprocessing run replaces all chunks for the document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Content    string    `db:"content" json:"content"`
	WordCount  int       `db:"word_count" json:"word_count"`
	PageStart  int       `db:"page_start" json:"page_start,omitempty"`
	PageEnd    int       `db:"page_end" json:"page_end,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChunkEmbedding holds the vector for one chunk (at most one per chunk).
// Metadata mirrors chunk provenance so search responses never re-join for it.
type ChunkEmbedding struct {
	ID        string         `db:"id" json:"id"`
	ChunkID   string         `db:"chunk_id" json:"chunk_id"`
	Vector    []float32      `db:"embedding" json:"vector"` // pgvector column
	Metadata  map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// DocumentRef is the owning document's reference attached to search results.
type DocumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SearchCandidate is a chunk row joined with its document (and, on the
// semantic path, its stored vector) as loaded for ranking.
type SearchCandidate struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	DocumentType string
	Content      string
	WordCount    int
	PageStart    int
	PageEnd      int
	Vector       []float32
}

// SearchResult is the uniform result shape produced by both search paths.
type SearchResult struct {
	ChunkID    string      `json:"chunk_id"`
	Content    string      `json:"content"`
	Similarity float64     `json:"similarity"`
	WordCount  int         `json:"word_count"`
	PageStart  int         `json:"page_start,omitempty"`
	PageEnd    int         `json:"page_end,omitempty"`
	Document   DocumentRef `json:"document"`
}
