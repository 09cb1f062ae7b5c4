// Package server exposes a read-only HTTP API over the leaderboard, plus
// health and Prometheus endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Leaderboard computes live rankings. *ledger.Ledger satisfies it.
type Leaderboard interface {
	Rank(ctx context.Context, window domain.Window, asOf time.Time) (ledger.Ranking, error)
}

// Snapshots reads captured snapshots. *store.Store satisfies it.
type Snapshots interface {
	LatestSnapshotBefore(ctx context.Context, window domain.Window, asOf time.Time) (*domain.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
}

// Config holds server configuration
type Config struct {
	Addr        string
	Log         zerolog.Logger
	DB          Pinger
	Leaderboard Leaderboard
	Snapshots   Snapshots
	// Gatherer backs /metrics; nil means the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	db          Pinger
	leaderboard Leaderboard
	snapshots   Snapshots
	gatherer    prometheus.Gatherer
	now         func() time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		db:          cfg.DB,
		leaderboard: cfg.Leaderboard,
		snapshots:   cfg.Snapshots,
		gatherer:    cfg.Gatherer,
		now:         time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard/{window}", s.handleLeaderboard)
		r.Get("/snapshots/{window}/latest", s.handleLatestSnapshot)
		r.Get("/snapshot/{id}", s.handleSnapshot)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
