// Package server exposes a running simulation over a JSON HTTP API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/rfsched/internal/config"
	"github.com/me/rfsched/internal/events"
	"github.com/me/rfsched/internal/journal"
	"github.com/me/rfsched/internal/scheduler"
	"github.com/me/rfsched/pkg/model"
)

// Commands resolves a command by scenario id or command ID.
type Commands interface {
	Command(id string) (*model.Command, bool)
}

// Server is the inspection API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.SimConfig
	startTime time.Time
	radio     *scheduler.Radio
	commands  Commands
	journal   journal.Journal // optional; history endpoints answer 404 without it
	bus       *events.Bus     // optional; used by the SSE stream
	version   string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithJournal enables the history endpoints.
func WithJournal(j journal.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithBus enables the live notification stream.
func WithBus(b *events.Bus) Option {
	return func(s *Server) {
		s.bus = b
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.SimConfig, radio *scheduler.Radio, cmds Commands, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		radio:     radio,
		commands:  cmds,
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)

		r.Route("/commands", func(r chi.Router) {
			r.Get("/", s.handleListCommands)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCommand)
				r.Get("/transitions", s.handleListTransitions)
				r.Get("/notifications", s.handleListNotifications)
				r.Post("/stop", s.handleStopCommand)
			})
		})

		r.Get("/sse/notifications", s.handleSSENotifications)
	})
}
