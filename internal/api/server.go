// Package api serves the statistics over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/config"
	"dcsstats/internal/logging"
	"dcsstats/internal/stats"
)

// Enqueuer accepts snapshot jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// SnapshotReader reads stored snapshots.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context) (*aggregate.SnapshotRow, error)
	SnapshotLeaderboard(ctx context.Context, id uuid.UUID, metric aggregate.Metric, limit int) ([]aggregate.LeaderboardRow, error)
}

// Config holds the server settings that are not wiring.
type Config struct {
	Addr            string
	RateLimitPerMin int // 0 disables rate limiting
	RateLimitBurst  int
	Features        config.Features
}

// Server is the stats HTTP API.
type Server struct {
	src     stats.Source
	jobs    Enqueuer
	store   SnapshotReader
	cfg     Config
	log     logging.Interface
	limiter *ipLimiter
}

// New builds a server. jobs may be nil, in which case snapshot requests are
// refused.
func New(src stats.Source, jobs Enqueuer, cfg Config) *Server {
	s := &Server{
		src:  src,
		jobs: jobs,
		cfg:  cfg,
		log:  logging.Logger(),
	}
	if cfg.RateLimitPerMin > 0 {
		s.limiter = newIPLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst)
	}
	return s
}

// WithSnapshotReader enables GET /api/v1/snapshots/latest.
func (s *Server) WithSnapshotReader(store SnapshotReader) *Server {
	s.store = store
	return s
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.maintenance)
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}

		r.With(s.feature(s.cfg.Features.Leaderboard)).Get("/leaderboard", s.handleLeaderboard)
		r.With(s.feature(s.cfg.Features.Players)).Get("/players/{name}", s.handlePlayer)
		r.With(s.feature(s.cfg.Features.Servers)).Get("/servers", s.handleServers)
		r.With(s.feature(s.cfg.Features.Squadrons)).Get("/squadrons", s.handleSquadrons)
		r.With(s.feature(s.cfg.Features.Snapshots)).Post("/snapshots", s.handleCreateSnapshot)
		r.With(s.feature(s.cfg.Features.Snapshots)).Get("/snapshots/latest", s.handleLatestSnapshot)
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("stats api listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Infof("shutting down stats api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return srv.Shutdown(shutdownCtx)
}
