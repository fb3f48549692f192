// Package server assembles the HTTP surface: routing, middleware, and
// graceful lifecycle around the job scheduler and notification hub.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/webhaul/webhaul/internal/observability"
	"github.com/webhaul/webhaul/internal/server/handlers"
	"github.com/webhaul/webhaul/internal/server/middleware"
	"github.com/webhaul/webhaul/pkg/notify"
)

// Server hosts the HTTP API.
type Server struct {
	host            string
	port            int
	router          chi.Router
	logger          *zap.Logger
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	svc   handlers.JobService
	hub   *notify.Hub
	rate  float64
	burst int
}

// Option customizes a Server.
type Option func(*Server)

// WithJobService wires the scheduler behind the job endpoints. Without it
// only the health and version routes are registered.
func WithJobService(svc handlers.JobService) Option {
	return func(s *Server) { s.svc = svc }
}

// WithHub wires the notification hub behind the websocket endpoint.
func WithHub(hub *notify.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithAdmissionRate enables per-client admission rate limiting.
func WithAdmissionRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rate = perSecond
		s.burst = burst
	}
}

// WithTimeouts sets the HTTP server timeouts.
func WithTimeouts(read, write, idle, shutdown time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
		s.shutdownTimeout = shutdown
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a server listening on host:port.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:            host,
		port:            port,
		logger:          observability.ServerLogger,
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		idleTimeout:     120 * time.Second,
		shutdownTimeout: 10 * time.Second,
		burst:           5,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", handlers.Health)
	r.Get("/health/live", handlers.Live)
	r.Get("/health/ready", handlers.Ready)
	r.Get("/health/startup", handlers.Startup)
	r.Get("/version", handlers.Version)

	if s.svc != nil {
		sh := handlers.NewScrapeHandler(s.svc, s.rate, s.burst)
		r.Route("/api/v1/scrape", func(r chi.Router) {
			r.Post("/start", sh.Start)
			r.Get("/status/{job_id}", sh.Status)
			r.Post("/human-input", sh.HumanInput)
			r.Post("/stop/{job_id}", sh.Stop)
			r.Get("/jobs", sh.List)
		})
		if s.hub != nil {
			wh := handlers.NewWSHandler(s.hub, s.svc, s.logger.Named("ws"))
			r.Get("/ws/{client_id}", wh.Serve)
		}
	}

	return r
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server",
		zap.Duration("timeout", s.shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}
