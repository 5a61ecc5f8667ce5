package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

// JobTracker advances a document's processing job through its state
// machine. Implemented by services.JobService.
type JobTracker interface {
	MarkProcessing(ctx context.Context, documentID string) error
	SetProgress(ctx context.Context, documentID string, progress int, details string) error
	Complete(ctx context.Context, documentID string) error
	Fail(ctx context.Context, documentID string, msg string) error
}

// EmbeddingPipeline generates and stores one vector per chunk. Provider
// calls are serialized within a document with a minimum interval between
// them, and the shared semaphore bounds in-flight calls across all
// documents so concurrent ingestion cannot exceed provider rate limits.
type EmbeddingPipeline struct {
	db       core.DbClient
	embedder core.EmbeddingProvider // nil means the stage is skipped
	tracker  JobTracker
	sem      *semaphore.Weighted
	interval time.Duration
	log      *zap.Logger
}

func NewEmbeddingPipeline(
	db core.DbClient,
	embedder core.EmbeddingProvider,
	tracker JobTracker,
	sem *semaphore.Weighted,
	interval time.Duration,
	log *zap.Logger,
) *EmbeddingPipeline {
	return &EmbeddingPipeline{
		db: db, embedder: embedder, tracker: tracker,
		sem: sem, interval: interval, log: log,
	}
}

// Run embeds the chunks sequentially and returns how many embeddings were
// stored. A single chunk's failure is logged and skipped; the pipeline
// never aborts on partial failure. With no provider configured the stage
// is skipped entirely and the job still completes.
func (p *EmbeddingPipeline) Run(ctx context.Context, documentID string, chunks []models.DocumentChunk) int {
	if p.embedder == nil {
		p.log.Info("no embedding provider configured, skipping embedding stage",
			zap.String("document_id", documentID))
		return 0
	}
	if len(chunks) == 0 {
		return 0
	}

	total := len(chunks)
	stored := 0
	for i := range chunks {
		ch := &chunks[i]

		if i > 0 && p.interval > 0 {
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				return stored
			}
		}

		vec, err := p.embedOne(ctx, ch.Content)
		if err != nil {
			p.log.Warn("chunk embedding failed, skipping",
				zap.String("document_id", documentID),
				zap.Int("chunk_index", ch.ChunkIndex),
				zap.Error(err))
		} else {
			emb := &models.ChunkEmbedding{
				ID:      uuid.NewString(),
				ChunkID: ch.ID,
				Vector:  vec,
				Metadata: map[string]any{
					"chunk_index": ch.ChunkIndex,
					"word_count":  ch.WordCount,
					"page_start":  ch.PageStart,
					"page_end":    ch.PageEnd,
					"model":       p.embedder.ModelName(),
				},
			}
			if err := p.db.InsertChunkEmbedding(ctx, emb); err != nil {
				p.log.Warn("chunk embedding insert failed, skipping",
					zap.String("document_id", documentID),
					zap.Int("chunk_index", ch.ChunkIndex),
					zap.Error(err))
			} else {
				stored++
			}
		}

		progress := embedProgressBase + embedProgressSpan*(i+1)/total
		_ = p.tracker.SetProgress(ctx, documentID, progress,
			fmt.Sprintf("generating embeddings (%d/%d)", i+1, total))
	}
	return stored
}

// embedOne holds a semaphore slot for the duration of the provider call.
func (p *EmbeddingPipeline) embedOne(ctx context.Context, text string) ([]float32, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)
	}

	vecs, err := p.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("provider returned no vector")
	}
	return vecs[0], nil
}
