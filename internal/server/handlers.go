package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hunterjsb/doorknock/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	dbStatus := "ok"
	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Database ping failed")
		status, code = "degraded", http.StatusServiceUnavailable
		dbStatus = err.Error()
	}

	response := map[string]any{
		"status":   status,
		"database": dbStatus,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory"] = map[string]any{
			"total_mb":     vm.Total / 1024 / 1024,
			"available_mb": vm.Available / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	}
	s.writeJSON(w, code, response)
}

type leaderboardResponse struct {
	Window  domain.Window             `json:"window"`
	AsOf    time.Time                 `json:"asOf"`
	Entries []domain.LeaderboardEntry `json:"entries"`
	Skipped int                       `json:"skipped"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	window, err := domain.ParseWindow(chi.URLParam(r, "window"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asOf := s.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		if asOf, err = time.Parse(time.RFC3339, raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "as_of must be an RFC3339 timestamp")
			return
		}
	}

	ranking, err := s.leaderboard.Rank(r.Context(), window, asOf)
	if err != nil {
		s.log.Error().Err(err).Str("window", string(window)).Msg("Failed to rank")
		s.writeError(w, http.StatusInternalServerError, "failed to compute leaderboard")
		return
	}
	entries := ranking.Entries
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	s.writeJSON(w, http.StatusOK, leaderboardResponse{
		Window:  ranking.Window,
		AsOf:    ranking.AsOf,
		Entries: entries,
		Skipped: len(ranking.Skipped),
	})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	window, err := domain.ParseWindow(chi.URLParam(r, "window"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.snapshots.LatestSnapshotBefore(r.Context(), window, s.now().Add(time.Second))
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("window", string(window)).Msg("Failed to load snapshot")
		s.writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.snapshots.GetSnapshot(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("snapshot", id).Msg("Failed to load snapshot")
		s.writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
