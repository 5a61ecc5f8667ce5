package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/api/handlers"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/config"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core/ingestion_engine"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	db core.DbClient,
	documents *services.DocumentService,
	jobs *services.JobService,
	search *services.SearchService,
	ing ingestion_engine.Ingestor,
	log *zap.Logger,
) *Server {
	docHandler := handlers.NewDocumentHandler(documents, jobs, ing, log)
	searchHandler := handlers.NewSearchHandler(search, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := db.Ping(r.Context()); err != nil {
				http.Error(w, "db unreachable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		api.Post("/documents/upload", docHandler.UploadDocument)
		api.Get("/documents", docHandler.GetDocuments)
		api.Delete("/documents/{documentID}", docHandler.DeleteDocument)
		api.Get("/documents/{documentID}/chunks", docHandler.GetDocumentChunks)
		api.Post("/documents/{documentID}/process", docHandler.StartProcessing)
		api.Get("/documents/{documentID}/job", docHandler.GetJobStatus)
		api.Post("/search", searchHandler.Search)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", zap.Error(err))
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
