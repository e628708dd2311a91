// Package api exposes the question-answering pipeline and index
// administration over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lexarch/lexarch/internal/config"
	"github.com/lexarch/lexarch/internal/conversation"
	"github.com/lexarch/lexarch/internal/corpus"
	"github.com/lexarch/lexarch/internal/index"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
	"github.com/lexarch/lexarch/internal/pipeline"
)

// Server is the HTTP API server.
type Server struct {
	router        chi.Router
	orchestrator  *pipeline.Orchestrator
	gate          *pipeline.Gate
	llm           llm.Client
	conversations conversation.Store
	indexer       *index.Indexer
	store         *index.Store
	corpus        *corpus.Corpus
	rules         metadata.Rules
	stats         *llm.Stats
	log           *slog.Logger
	cfg           config.Config
}

// Deps carries the collaborators the server routes requests to.
type Deps struct {
	Orchestrator  *pipeline.Orchestrator
	Gate          *pipeline.Gate
	LLM           llm.Client
	Conversations conversation.Store
	Indexer       *index.Indexer
	Store         *index.Store
	Corpus        *corpus.Corpus
	Rules         metadata.Rules
	Stats         *llm.Stats
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator:  deps.Orchestrator,
		gate:          deps.Gate,
		llm:           deps.LLM,
		conversations: deps.Conversations,
		indexer:       deps.Indexer,
		store:         deps.Store,
		corpus:        deps.Corpus,
		rules:         deps.Rules,
		stats:         deps.Stats,
		log:           log,
		cfg:           cfg,
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

	// Authenticated endpoints. Without a configured key the API is
	// open, intended for local development only.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/chat", s.handleChat)
		r.Get("/api/conversations", s.handleListConversations)
		r.Post("/api/conversations", s.handleCreateConversation)
		r.Get("/api/conversations/{conversationID}", s.handleGetConversation)

		r.Get("/api/index/stats", s.handleIndexStats)
		r.Post("/api/index/sync", s.handleIndexSync)
		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Get("/pdf/*", s.handleServePDF)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
