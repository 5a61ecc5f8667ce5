package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(docID string)
	ProcessOne(ctx context.Context, docID string) error
}

// DocumentIngestor runs the ingestion pipeline for queued documents:
// download -> extract -> chunk -> embed, with the job record updated
// after each stage. Stages run sequentially within one document; the
// worker count bounds how many documents process concurrently.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	extractor core.PageExtractor
	pipeline  *EmbeddingPipeline
	tracker   JobTracker
	cfg       IngestConfig
	jobs      chan string
	log       *zap.Logger
}

func NewDocumentIngestor(
	db core.DbClient,
	obj core.ObjectClient,
	extractor core.PageExtractor,
	pipeline *EmbeddingPipeline,
	tracker JobTracker,
	cfg *IngestConfig,
	log *zap.Logger,
) *DocumentIngestor {
	resolved := cfg.withDefaults()
	return &DocumentIngestor{
		db: db, obj: obj, extractor: extractor, pipeline: pipeline,
		tracker: tracker, cfg: resolved,
		jobs: make(chan string, resolved.QueueSize),
		log:  log,
	}
}

// Start launches the worker pool reading from the jobs channel.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Info("ingest worker shutting down", zap.Int("worker", w))
					return
				case docID := <-i.jobs:
					i.log.Info("processing document",
						zap.Int("worker", w), zap.String("document_id", docID))
					if err := i.ProcessOne(ctx, docID); err != nil {
						i.log.Error("document processing failed",
							zap.String("document_id", docID), zap.Error(err))
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion.
// If the queue is full, this call will block until space frees up.
func (i *DocumentIngestor) Enqueue(docID string) {
	i.jobs <- docID
}

// ProcessOne runs the full pipeline for a single document. Download and
// extraction errors are fatal and mark the job failed; embedding errors
// are per-chunk and never prevent completion.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	// Processing outlives the request that enqueued it.
	proctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}

	if err := i.tracker.MarkProcessing(proctx, docID); err != nil {
		// A lost claim means another run (or a stale duplicate queue
		// entry) owns this document; skip without failing the job.
		if errors.Is(err, core.ErrJobRunning) {
			i.log.Info("skipping duplicate run, job already claimed",
				zap.String("document_id", docID))
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := i.obj.GetFile(proctx, bucket, key)
	if err != nil {
		return i.fail(proctx, docID, fmt.Errorf("download source: %w", err))
	}
	_ = i.tracker.SetProgress(proctx, docID, progressDownloaded, "downloaded source")

	pages, err := i.extractor.ExtractPages(proctx, data, doc.ContentType)
	if err != nil {
		return i.fail(proctx, docID, fmt.Errorf("extract text: %w", err))
	}
	_ = i.tracker.SetProgress(proctx, docID, progressExtracted,
		fmt.Sprintf("extracted %d pages", len(pages)))

	chunks := ChunkPages(pages, i.cfg.TargetWords, i.cfg.OverlapWords)
	rows := make([]models.DocumentChunk, len(chunks))
	for k, ch := range chunks {
		rows[k] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			ChunkIndex: ch.Index,
			Content:    ch.Content,
			WordCount:  ch.WordCount,
			PageStart:  ch.PageStart,
			PageEnd:    ch.PageEnd,
		}
	}
	if err := i.db.ReplaceDocumentChunks(proctx, docID, rows); err != nil {
		return i.fail(proctx, docID, fmt.Errorf("store chunks: %w", err))
	}
	_ = i.tracker.SetProgress(proctx, docID, progressChunked,
		fmt.Sprintf("stored %d chunks", len(rows)))

	stored := i.pipeline.Run(proctx, docID, rows)
	i.log.Info("embedding stage finished",
		zap.String("document_id", docID),
		zap.Int("chunks", len(rows)),
		zap.Int("embeddings", stored))

	return i.tracker.Complete(proctx, docID)
}

func (i *DocumentIngestor) fail(ctx context.Context, docID string, err error) error {
	if trackErr := i.tracker.Fail(ctx, docID, err.Error()); trackErr != nil {
		i.log.Error("failed to record job failure",
			zap.String("document_id", docID), zap.Error(trackErr))
	}
	return err
}

// parseS3URL extracts the bucket and key from a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
