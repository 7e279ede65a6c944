// Package server provides the HTTP API for the tutoring backend.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/progress"
	"github.com/hyperjump/mentoria/internal/search"
	"github.com/hyperjump/mentoria/internal/storage"
	"github.com/hyperjump/mentoria/internal/tutor"
	"github.com/hyperjump/mentoria/pkg/utils"
)

// Deps are the components the server routes requests to.
type Deps struct {
	Tutor   *tutor.Service
	Engine  *search.Engine
	Tracker *progress.Tracker
	Agents  *config.AgentRegistry
	Storage storage.ProgressStorage
	Config  *config.Config
	// ConfigPath, when set, receives agent configuration updates.
	ConfigPath string
	Version    string
	Logger     *zap.Logger
}

// Server is the HTTP server for the tutoring API.
type Server struct {
	tutor      *tutor.Service
	engine     *search.Engine
	tracker    *progress.Tracker
	agents     *config.AgentRegistry
	storage    storage.ProgressStorage
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	version    string
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		tutor:      d.Tutor,
		engine:     d.Engine,
		tracker:    d.Tracker,
		agents:     d.Agents,
		storage:    d.Storage,
		config:     d.Config,
		configPath: d.ConfigPath,
		version:    d.Version,
		logger:     utils.OrNop(d.Logger),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/grade", s.handleGrade)
	r.Get("/api/progress", s.handleGetProgress)
	r.Post("/api/progress/award", s.handleAward)
	r.Post("/api/progress/events", s.handleLogEvent)
	r.Get("/api/debug/retriever", s.handleDebugRetriever)
	r.Get("/api/agents", s.handleListAgents)
	r.Post("/api/agents/config", s.handleUpdateAgent)
	r.Post("/api/sessions", s.handleNewSession)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	if s.config != nil && s.config.Server.PublicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.Server.PublicDir)))
	}
	return r
}

func (s *Server) requestTimeout() time.Duration {
	if s.config != nil && s.config.Server.RequestTimeout > 0 {
		return s.config.Server.RequestTimeout.Std()
	}
	return 60 * time.Second
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
