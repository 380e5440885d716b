package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/stats"
	"github.com/streme-fun/streme-bot/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// notFoundBody is what the frontend expects for an unknown token.
	notFoundBody = "No such document!"
)

// GET /api/tokens?limit=N, newest first.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := s.tokens.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("api: list tokens")
		sendError(w, "failed to list tokens", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*storage.TokenRecord{}
	}
	sendJSON(w, http.StatusOK, records)
}

// GET /token/{address}
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.PathValue("address"))
	rec, err := s.tokens.GetByAddress(r.Context(), address)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, notFoundBody, http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("token", address).Msg("api: get token")
		sendError(w, "failed to load token", http.StatusInternalServerError)
		return
	}
	sendJSON(w, http.StatusOK, rec)
}

// GET /token/{address}/stats
func (s *Server) handleTokenStats(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.PathValue("address"))
	st, err := s.stats.TokenStats(r.Context(), address)
	if err != nil {
		s.statsError(w, address, err)
		return
	}
	sendJSON(w, http.StatusOK, st)
}

// GET /token/{address}/stats/{holder}
func (s *Server) handleHolderStats(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.PathValue("address"))
	st, err := s.stats.HolderStats(r.Context(), address, r.PathValue("holder"))
	if err != nil {
		s.statsError(w, address, err)
		return
	}
	sendJSON(w, http.StatusOK, st)
}

func (s *Server) statsError(w http.ResponseWriter, address string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, notFoundBody, http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidInput):
		sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, stats.ErrStakingNotFound):
		sendError(w, "staking not deployed for token", http.StatusNotFound)
	default:
		log.Error().Err(err).Str("token", address).Msg("api: stats")
		sendError(w, "failed to compute stats", http.StatusBadGateway)
	}
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("api: encode response")
	}
}

func sendError(w http.ResponseWriter, msg string, status int) {
	sendJSON(w, status, map[string]string{"error": msg})
}
