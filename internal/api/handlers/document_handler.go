package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/ingestion_engine"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/services"
)

type DocumentHandler struct {
	documents *services.DocumentService
	jobs      *services.JobService
	ingestor  ingestion_engine.Ingestor
	log       *zap.Logger
}

func NewDocumentHandler(documents *services.DocumentService, jobs *services.JobService, ing ingestion_engine.Ingestor, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, jobs: jobs, ingestor: ing, log: log}
}

// UploadDocument stores the file, creates the document record, resets the
// job to pending, and enqueues ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// Strip any path components from the client-supplied name.
	cleanFilename := filepath.Base(header.Filename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.documents.UploadAndCreate(uploadCtx, cleanFilename, contentType, data, "upload")
	if err != nil {
		h.log.Error("upload failed", zap.String("file", cleanFilename), zap.Error(err))
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	job, err := h.jobs.Reset(uploadCtx, doc.ID, nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create processing job: %v", err), http.StatusInternalServerError)
		return
	}

	h.ingestor.Enqueue(doc.ID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document": doc,
		"job":      job,
	})
}

// StartProcessing retriggers ingestion for an existing document. The job
// is reset to the pending baseline; a job still processing is rejected.
func (h *DocumentHandler) StartProcessing(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "documentID")

	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	var config map[string]any
	if r.Body != nil {
		// Optional job configuration; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&config)
	}

	job, err := h.jobs.Reset(r.Context(), docID, config)
	if errors.Is(err, core.ErrJobRunning) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.ingestor.Enqueue(docID)

	writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

// GetJobStatus returns the last known job record plus chunk/embedding
// counts so callers can see partial embedding coverage.
func (h *DocumentHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "documentID")

	job, err := h.jobs.Status(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "no job for document", http.StatusNotFound)
		return
	}

	chunks, embeddings, err := h.jobs.Coverage(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job":             job,
		"chunk_count":     chunks,
		"embedding_count": embeddings,
	})
}

// GetDocumentChunks lists the document's chunks in index order.
func (h *DocumentHandler) GetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "documentID")

	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	chunks, err := h.documents.Chunks(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"chunk_count": len(chunks),
		"chunks":      chunks,
	})
}

// DeleteDocument removes the stored object and every derived record. A
// document whose job is still processing is rejected, mirroring the
// retrigger policy.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "documentID")

	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	err = h.documents.Delete(r.Context(), docID)
	if errors.Is(err, core.ErrJobRunning) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("document delete failed", zap.String("document_id", docID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.documents.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
