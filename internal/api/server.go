package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/mdguard/internal/config"
	"github.com/dgallion1/mdguard/internal/ledger"
	"github.com/dgallion1/mdguard/internal/pathstore"
	"github.com/dgallion1/mdguard/internal/pipeline"
)

// Server is the HTTP API server for mdguard.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *pathstore.Client
	ledger       *ledger.Ledger
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. store and led may be
// nil when the sink or the ledger is disabled.
func NewServer(orch *pipeline.Orchestrator, store *pathstore.Client, led *ledger.Ledger, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        store,
		ledger:       led,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/parse", s.handleParse)
		r.Post("/api/sanitize", s.handleSanitize)
		r.Post("/api/guard", s.handleGuard)

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/stats/parse", s.handleParseStats)

		r.Get("/api/quarantine", s.handleQuarantine)
		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"sink":        s.store != nil,
		"ledger":      s.ledger != nil,
	})
}
