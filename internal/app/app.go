package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/config"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	db "github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/database"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/extraction"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/ingestion_engine"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/llm"
	objectclient "github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/object-client"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/services"
)

type App struct {
	DBClient core.DbClient
	Ingestor ingestion_engine.Ingestor
	Server   *Server
	log      *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("object client initialized and ready")

	// An absent API key selects degraded mode: ingestion skips the
	// embedding stage and search falls back to lexical matching.
	var embedder core.EmbeddingProvider
	if cfg.AIAPIKey != "" {
		gemini, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
		}
		embedder = gemini
	} else {
		log.Warn("GEMINI_API_KEY not set, running without embeddings")
	}

	extractor := extraction.NewCompositeExtractor(
		extraction.NewFitzExtractor(log),
		extraction.NewDocconvExtractor(false),
	)

	jobService := services.NewJobService(dbClient, log)
	documentService := services.NewDocumentService(dbClient, objClient, cfg.BucketName)
	searchService := services.NewSearchService(dbClient, embedder, log)

	// One semaphore across all workers keeps total in-flight provider
	// calls bounded no matter how many documents ingest concurrently.
	sem := semaphore.NewWeighted(int64(cfg.MaxInflightEmbeds))
	pipeline := ingestion_engine.NewEmbeddingPipeline(
		dbClient, embedder, jobService, sem,
		time.Duration(cfg.EmbedIntervalMs)*time.Millisecond, log,
	)

	ingCfg := &ingestion_engine.IngestConfig{
		TargetWords:  cfg.ChunkTargetWords,
		OverlapWords: cfg.ChunkOverlapWords,
	}
	ingestor := ingestion_engine.NewDocumentIngestor(
		dbClient, objClient, extractor, pipeline, jobService, ingCfg, log,
	)

	server := NewServer(cfg, dbClient, documentService, jobService, searchService, ingestor, log)

	return &App{DBClient: dbClient, Ingestor: ingestor, Server: server, log: log}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
