// Package server exposes the workflow service over HTTP: a JSON API for
// starting and resuming threads, an SSE stream of per-thread progress,
// and the prometheus scrape endpoint.
//
// The server is a thin shell. All workflow semantics live in the
// service; handlers translate HTTP into service calls and map the
// service's error types onto status codes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/auth"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"

	// DefaultHeartbeat is the SSE keepalive interval.
	DefaultHeartbeat = 30 * time.Second

	// DefaultMutationRate caps thread-mutating requests per second.
	DefaultMutationRate = rate.Limit(10)

	// DefaultMutationBurst is the mutation rate limiter's burst size.
	DefaultMutationBurst = 20
)

// Config controls the HTTP server.
type Config struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string

	// AllowedOrigins lists origins allowed for CORS. "*" allows any.
	// Empty disables cross-origin requests.
	AllowedOrigins []string

	// Keyring authenticates API keys when it has entries.
	Keyring *auth.Keyring

	// JWT validates reviewer tokens when its secret is set.
	JWT *auth.JWTConfig

	// MutationRate and MutationBurst bound thread-mutating requests
	// (start, resume, exercise). Reads are never limited.
	MutationRate  rate.Limit
	MutationBurst int

	// Heartbeat is the SSE keepalive interval.
	Heartbeat time.Duration

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) addr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return DefaultAddr
}

func (c Config) heartbeat() time.Duration {
	if c.Heartbeat > 0 {
		return c.Heartbeat
	}
	return DefaultHeartbeat
}

func (c Config) mutationRate() rate.Limit {
	if c.MutationRate > 0 {
		return c.MutationRate
	}
	return DefaultMutationRate
}

func (c Config) mutationBurst() int {
	if c.MutationBurst > 0 {
		return c.MutationBurst
	}
	return DefaultMutationBurst
}

// =============================================================================
// Server
// =============================================================================

// Server hosts the JSON/SSE API for one workflow service.
type Server struct {
	svc     *careflow.Service
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter
	httpSrv *http.Server
	handler http.Handler
}

// New wires the router and middleware around the service.
func New(svc *careflow.Service, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(cfg.mutationRate(), cfg.mutationBurst()),
	}
	s.handler = s.routes()

	// No WriteTimeout: the SSE stream holds its connection open and
	// writes at heartbeat cadence.
	s.httpSrv = &http.Server{
		Addr:              cfg.addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Reads: any authenticated role, or open when auth is off.
		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleObserver))
			r.Get("/threads", s.handleListThreads)
			r.Get("/threads/{threadID}", s.handleGetThread)
			r.Get("/threads/{threadID}/history", s.handleHistory)
			r.Get("/threads/{threadID}/stream", s.handleStream)
		})

		// Mutations: reviewer role, rate limited.
		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleReviewer))
			r.Use(s.rateLimit)
			r.Post("/threads", s.handleStartThread)
			r.Post("/threads/{threadID}/resume", s.handleResume)
			r.Post("/exercise", s.handleCreateExercise)
		})
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info("server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight
// requests. Open SSE streams end when the service closes its emitter.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
