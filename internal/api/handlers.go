// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/models"
	syncpkg "github.com/okatz/mediatheca/internal/sync"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// SyncManager is the subset of the sync manager the HTTP layer drives.
type SyncManager interface {
	TriggerSync(ctx context.Context) (*models.SyncResult, error)
	TriggerReconcile(ctx context.Context) (*models.SyncResult, error)
	MatchMovies(ctx context.Context) (*models.SyncResult, error)
	PreviewMovieMatches(ctx context.Context) ([]syncpkg.MovieMatchPreview, error)
	Status(ctx context.Context) *syncpkg.Status
	ServerID() string
}

// Store is the subset of the database layer the HTTP layer reads from.
type Store interface {
	Ping(ctx context.Context) error
	ListRecentActivities(ctx context.Context, serverID string, limit int) ([]*models.Activity, error)
}

// Pinger reports reachability of the media server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API.
type Handler struct {
	manager SyncManager
	store   Store
	source  Pinger
}

// NewHandler creates a handler around the sync manager and stores.
func NewHandler(manager SyncManager, store Store, source Pinger) *Handler {
	return &Handler{manager: manager, store: store, source: source}
}

// TriggerSync runs a full sync pass and returns its result.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.TriggerSync(r.Context())
	h.writeSyncOutcome(w, result, err)
}

// TriggerReconcile runs a reconcile pass and returns its result.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.TriggerReconcile(r.Context())
	h.writeSyncOutcome(w, result, err)
}

// PreviewMovieMatches returns the pairings a confirmed MatchMovies call
// would apply, with the reference counts that would move.
func (h *Handler) PreviewMovieMatches(w http.ResponseWriter, r *http.Request) {
	previews, err := h.manager.PreviewMovieMatches(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Movie match preview failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": previews,
		"count":   len(previews),
	})
}

// MatchMovies runs the operator-confirmed movie migration pass. The
// confirm=yes query parameter is required because name and year matching
// is weaker than the automatic strategies and can link the wrong rows.
func (h *Handler) MatchMovies(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "yes" {
		writeError(w, http.StatusBadRequest, "movie matching requires explicit confirmation: add ?confirm=yes")
		return
	}

	result, err := h.manager.MatchMovies(r.Context())
	h.writeSyncOutcome(w, result, err)
}

func (h *Handler) writeSyncOutcome(w http.ResponseWriter, result *models.SyncResult, err error) {
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logging.Error().Err(err).Msg("Sync operation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if result != nil && result.Status == models.SyncStatusError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// SyncStatus reports the manager's current state and last results.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status(r.Context()))
}

// RecentActivities returns the newest stored activity entries.
func (h *Handler) RecentActivities(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxActivityLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}

	activities, err := h.store.ListRecentActivities(r.Context(), h.manager.ServerID(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list activities")
		writeError(w, http.StatusInternalServerError, "failed to list activities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activities": activities,
		"count":      len(activities),
	})
}

// Health reports database and media server reachability. The endpoint
// returns 503 when the database is down; an unreachable media server is
// reported but does not fail the probe, sync handles that itself.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbErr := h.store.Ping(r.Context())
	sourceErr := h.source.Ping(r.Context())

	body := map[string]interface{}{
		"status":   "ok",
		"database": componentStatus(dbErr),
		"jellyfin": componentStatus(sourceErr),
	}

	status := http.StatusOK
	if dbErr != nil {
		body["status"] = "unavailable"
		status = http.StatusServiceUnavailable
	} else if sourceErr != nil {
		body["status"] = "degraded"
	}

	writeJSON(w, status, body)
}

func componentStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}
