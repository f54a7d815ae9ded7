// Package server provides the HTTP server and routing for the margin service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/simm/internal/database"
	"github.com/aristath/simm/internal/events"
	"github.com/aristath/simm/internal/metrics"
	"github.com/aristath/simm/internal/modules/runs"
	runshandlers "github.com/aristath/simm/internal/modules/runs/handlers"
	"github.com/aristath/simm/internal/modules/simm"
	simmhandlers "github.com/aristath/simm/internal/modules/simm/handlers"
	"github.com/aristath/simm/internal/reliability"
	"github.com/aristath/simm/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log           zerolog.Logger
	RunsDB        *database.DB
	Calculator    *simm.Calculator
	Runs          *runs.Service
	Metrics       *metrics.Registry
	Scheduler     *scheduler.Scheduler
	Backups       *reliability.BackupService
	Events        *events.Bus
	WSOrigins     []string
	ParamsVersion string
	Port          int
	DevMode       bool
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     Config
	started time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		cfg:     cfg,
		started: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	if s.cfg.Events != nil {
		s.router.Handle("/ws/events", NewEventsStreamHandler(s.cfg.Events, s.cfg.WSOrigins, s.cfg.DevMode, s.log))
	}

	system := NewSystemHandlers(s.cfg, s.started, s.log)

	s.router.Route("/api", func(r chi.Router) {
		// Large ensembles take a while; sharded requests observe the deadline.
		r.Use(middleware.Timeout(60 * time.Second))

		if s.cfg.Calculator != nil {
			simmhandlers.NewHandler(s.cfg.Calculator, s.log).RegisterRoutes(r)
		}
		if s.cfg.Runs != nil {
			runshandlers.NewHandler(s.cfg.Runs, s.log).RegisterRoutes(r)
		}
		system.RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
