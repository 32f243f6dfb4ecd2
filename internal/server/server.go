// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geodialogue/internal/common/config"
	"geodialogue/internal/common/logger"
	dialoguemanager "geodialogue/internal/dialogue/dialogue-manager"
	"geodialogue/internal/models"
	"geodialogue/pkg/registry"
)

// Dialogue is the part of the dialogue manager the chat API drives.
type Dialogue interface {
	HandleTurn(ctx context.Context, turn dialoguemanager.Turn) (*dialoguemanager.Reply, error)
	Session(ctx context.Context, sessionID string) (*models.ConversationState, error)
	Abandon(ctx context.Context, sessionID string) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      config.ServerConfig
	router   *chi.Mux
	dialogue Dialogue
	store    Pinger
	registry *registry.Registry
	logger   logger.Logger
	http     *http.Server
}

func New(cfg config.ServerConfig, dialogue Dialogue, store Pinger, reg *registry.Registry, log logger.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		dialogue: dialogue,
		store:    store,
		registry: reg,
		logger:   log,
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	if s.cfg.WriteTimeout > 0 {
		s.router.Use(middleware.Timeout(config.GetDuration(s.cfg.WriteTimeout)))
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/analyses", s.handleAnalyses)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("chat API listening", map[string]interface{}{"address": s.cfg.Address})
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger writes one access log line per request.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := map[string]interface{}{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      status,
					"duration_ms": time.Since(start).Milliseconds(),
					"request_id":  middleware.GetReqID(r.Context()),
				}
				if status >= http.StatusInternalServerError {
					log.Warn("http request", fields)
					return
				}
				log.Debug("http request", fields)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
