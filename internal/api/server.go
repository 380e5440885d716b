// Package api serves the read-side HTTP endpoints: token records, token and
// holder stats, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/stats"
	"github.com/streme-fun/streme-bot/internal/storage"
)

// StatsReader computes token figures.
type StatsReader interface {
	TokenStats(ctx context.Context, tokenAddress string) (*stats.TokenStats, error)
	HolderStats(ctx context.Context, tokenAddress, holder string) (*stats.UserTokenStats, error)
}

// Server is the read API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	tokens     storage.TokenStore
	stats      StatsReader
	health     http.Handler
	metrics    http.Handler
}

// NewServer creates the API on port. health and metrics may be nil, in
// which case their routes are not registered.
func NewServer(port int, tokens storage.TokenStore, calc StatsReader, health, metrics http.Handler) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		mux:     mux,
		tokens:  tokens,
		stats:   calc,
		health:  health,
		metrics: metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	if s.health != nil {
		s.mux.Handle("GET /health", s.health)
	}
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("GET /api/tokens", s.handleListTokens)
	s.mux.HandleFunc("GET /token/{address}", s.handleGetToken)
	s.mux.HandleFunc("GET /token/{address}/stats", s.handleTokenStats)
	s.mux.HandleFunc("GET /token/{address}/stats/{holder}", s.handleHolderStats)
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("api: server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: server error")
		}
	}()
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("api: server shutting down")
	return s.httpServer.Shutdown(ctx)
}
