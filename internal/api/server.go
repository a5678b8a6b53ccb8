package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/groundtruth/internal/config"
	"github.com/dgallion1/groundtruth/internal/llm"
	"github.com/dgallion1/groundtruth/internal/metrics"
	"github.com/dgallion1/groundtruth/internal/pipeline"
	"github.com/dgallion1/groundtruth/internal/workflow"
)

// Server is the HTTP API server for groundtruth.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	workflow     workflow.Workflow
	model        string
	stats        *llm.Stats
	log          *slog.Logger
	cfg          config.Config
}

// Options carries the collaborators the server reports on.
type Options struct {
	// Workflow is used when a request names none.
	Workflow workflow.Workflow
	Model    string
	Stats    *llm.Stats
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, opts Options, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		orchestrator: orch,
		workflow:     opts.Workflow,
		model:        opts.Model,
		stats:        opts.Stats,
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
	r.Handle("/metrics", metrics.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/runs", s.handleCreateRun)
		r.Post("/api/runs/upload", s.handleUploadRun)
		r.Get("/api/runs/{runID}", s.handleGetRun)
		r.Get("/api/workflows", s.handleListWorkflows)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
