// Package server exposes the TSV export endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/enrich-export/internal/config"
	"github.com/Sternrassler/enrich-export/pkg/enrich"
	"github.com/Sternrassler/enrich-export/pkg/metrics"
	"github.com/Sternrassler/enrich-export/pkg/ratelimit"
)

// Trailer names announced on every export response.
const (
	TrailerStatus  = "X-Export-Status"
	TrailerRows    = "X-Export-Rows"
	TrailerSkipped = "X-Export-Skipped"

	HeaderExportID = "X-Export-Id"
)

// Options wires a Server.
type Options struct {
	// Querier executes upstream queries.
	Querier enrich.Querier
	// Resolver maps user gene-set ids to genes. Defaults to an uncached
	// resolver over Querier.
	Resolver *enrich.Resolver
	// Tracker limits concurrent exports. Defaults to an in-process tracker
	// allowing Export.MaxConcurrent exports.
	Tracker *ratelimit.Tracker
	// Export bounds page size and caller-chosen limits.
	Export config.ExportConfig
	// Logger is the parent of every request logger.
	Logger zerolog.Logger
}

// Server serves exports.
type Server struct {
	querier  enrich.Querier
	resolver *enrich.Resolver
	tracker  *ratelimit.Tracker
	limits   config.ExportConfig
	logger   zerolog.Logger
	mux      *http.ServeMux
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Querier == nil {
		panic("querier cannot be nil")
	}
	limits := opts.Export
	defaults := config.DefaultConfig().Export
	if limits.PageSize <= 0 {
		limits.PageSize = defaults.PageSize
	}
	if limits.MaxTopN <= 0 {
		limits.MaxTopN = defaults.MaxTopN
	}
	if limits.DefaultTopN <= 0 {
		limits.DefaultTopN = min(defaults.DefaultTopN, limits.MaxTopN)
	}
	if limits.MaxTotalLimit <= 0 {
		limits.MaxTotalLimit = defaults.MaxTotalLimit
	}
	if limits.DefaultMaxTotal <= 0 {
		limits.DefaultMaxTotal = min(defaults.DefaultMaxTotal, limits.MaxTotalLimit)
	}
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = defaults.MaxConcurrent
	}

	s := &Server{
		querier:  opts.Querier,
		resolver: opts.Resolver,
		tracker:  opts.Tracker,
		limits:   limits,
		logger:   opts.Logger.With().Str("component", "server").Logger(),
		mux:      http.NewServeMux(),
	}
	if s.resolver == nil {
		s.resolver = enrich.NewResolver(opts.Querier, nil)
	}
	if s.tracker == nil {
		s.tracker = ratelimit.NewTracker(nil, ratelimit.Config{Limit: limits.MaxConcurrent}, s.logger)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/slots", s.handleSlots)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /enrich/download", s.handleEnrich(false))
	s.mux.HandleFunc("GET /enrichpair/download", s.handleEnrich(true))
	s.mux.HandleFunc("GET /term-search/download", s.handleTermSearch)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down,
// giving in-flight exports up to shutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting export server")
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

	s.logger.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down export server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth reports OK while export slots can be read. With Redis
// configured this doubles as a Redis reachability check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tracker.GetState(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		http.Error(w, "export slots unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleSlots reports export slot usage as JSON.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	state, err := s.tracker.GetState(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Slot state unavailable")
		http.Error(w, "export slots unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}
