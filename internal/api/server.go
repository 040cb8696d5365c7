// Package api exposes the quiz generation pipeline over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/pipeline"
)

// Server is the HTTP API server for quizgen.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	llmClient    *llm.Client
	log          *slog.Logger
	cfg          config.Settings
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, client *llm.Client, log *slog.Logger, cfg config.Settings) *Server {
	s := &Server{
		orchestrator: orch,
		llmClient:    client,
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

		r.Post("/api/quiz", s.handleSubmitQuiz)
		r.Get("/api/quiz/{jobID}/status", s.handleQuizStatus)
		r.Get("/api/quiz/{jobID}/result", s.handleQuizResult)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
