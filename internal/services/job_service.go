package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// startingProgress is the small initial value recorded on entry to the
// processing state.
const startingProgress = 5

// JobService owns the processing-job state machine:
// pending -> processing -> {completed | failed}. One logical job exists
// per document; Reset rewrites the existing record instead of appending.
type JobService struct {
	db  core.DbClient
	log *zap.Logger
}

func NewJobService(db core.DbClient, log *zap.Logger) *JobService {
	return &JobService{db: db, log: log}
}

// Reset upserts the document's job back to the pending baseline before a
// (re)trigger. It returns core.ErrJobRunning while the current job is
// still processing; the caller decides how to surface the rejection.
func (s *JobService) Reset(ctx context.Context, documentID string, config map[string]any) (*models.ProcessingJob, error) {
	job, err := s.db.ResetJob(ctx, documentID, config)
	if err != nil {
		return nil, err
	}
	s.log.Info("job reset to pending", zap.String("document_id", documentID))
	return job, nil
}

// Status returns the last known job record, or nil when none exists.
func (s *JobService) Status(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	return s.db.GetJobByDocument(ctx, documentID)
}

// Coverage reports how many chunks and embeddings exist for the document,
// letting callers infer partial embedding coverage.
func (s *JobService) Coverage(ctx context.Context, documentID string) (chunks, embeddings int, err error) {
	chunks, err = s.db.CountChunksByDocument(ctx, documentID)
	if err != nil {
		return 0, 0, err
	}
	embeddings, err = s.db.CountEmbeddingsByDocument(ctx, documentID)
	if err != nil {
		return 0, 0, err
	}
	return chunks, embeddings, nil
}

// MarkProcessing claims the pending job for one run, recording the start
// timestamp and the initial progress. A job that is not pending returns
// core.ErrJobRunning, so duplicate runs lose the claim.
func (s *JobService) MarkProcessing(ctx context.Context, documentID string) error {
	return s.db.MarkJobProcessing(ctx, documentID, startingProgress, "processing started")
}

// SetProgress advances progress; the store keeps it monotonic, so a late
// or duplicate checkpoint can never move it backwards.
func (s *JobService) SetProgress(ctx context.Context, documentID string, progress int, details string) error {
	return s.db.UpdateJobProgress(ctx, documentID, progress, details)
}

// Complete records progress=100 and the completion timestamp.
func (s *JobService) Complete(ctx context.Context, documentID string) error {
	s.log.Info("job completed", zap.String("document_id", documentID))
	return s.db.CompleteJob(ctx, documentID)
}

// Fail records the triggering error and the completion timestamp.
// Failure is terminal; the partial progress value is not meaningful.
func (s *JobService) Fail(ctx context.Context, documentID string, msg string) error {
	s.log.Warn("job failed", zap.String("document_id", documentID), zap.String("error", msg))
	return s.db.FailJob(ctx, documentID, msg)
}
