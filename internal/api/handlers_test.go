// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okatz/mediatheca/internal/models"
	syncpkg "github.com/okatz/mediatheca/internal/sync"
)

type fakeManager struct {
	syncResult      *models.SyncResult
	syncErr         error
	reconcileResult *models.SyncResult
	reconcileErr    error
	matchResult     *models.SyncResult
	matchErr        error
	matchCalls      int
	previews        []syncpkg.MovieMatchPreview
	previewErr      error
}

func (f *fakeManager) TriggerSync(ctx context.Context) (*models.SyncResult, error) {
	return f.syncResult, f.syncErr
}

func (f *fakeManager) TriggerReconcile(ctx context.Context) (*models.SyncResult, error) {
	return f.reconcileResult, f.reconcileErr
}

func (f *fakeManager) MatchMovies(ctx context.Context) (*models.SyncResult, error) {
	f.matchCalls++
	return f.matchResult, f.matchErr
}

func (f *fakeManager) PreviewMovieMatches(ctx context.Context) ([]syncpkg.MovieMatchPreview, error) {
	return f.previews, f.previewErr
}

func (f *fakeManager) Status(ctx context.Context) *syncpkg.Status {
	return &syncpkg.Status{ServerID: "srv-1", Running: true}
}

func (f *fakeManager) ServerID() string { return "srv-1" }

type fakeAPIStore struct {
	pingErr    error
	activities []*models.Activity
	listErr    error
	lastLimit  int
}

func (f *fakeAPIStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeAPIStore) ListRecentActivities(ctx context.Context, serverID string, limit int) ([]*models.Activity, error) {
	f.lastLimit = limit
	return f.activities, f.listErr
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(manager *fakeManager, store *fakeAPIStore, source *fakePinger) http.Handler {
	if manager == nil {
		manager = &fakeManager{}
	}
	if store == nil {
		store = &fakeAPIStore{}
	}
	if source == nil {
		source = &fakePinger{}
	}
	return NewRouter(NewHandler(manager, store, source)).Setup()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("response decode failed: %v (body: %s)", err, rec.Body.String())
	}
}

func TestTriggerSyncEndpoint(t *testing.T) {
	manager := &fakeManager{
		syncResult: &models.SyncResult{
			Status: models.SyncStatusSuccess,
			Counts: models.SyncCounts{Inserted: 5},
		},
	}
	handler := newTestServer(manager, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result models.SyncResult
	decodeBody(t, rec, &result)
	if result.Counts.Inserted != 5 {
		t.Errorf("Inserted = %d, want 5", result.Counts.Inserted)
	}
}

func TestTriggerSyncEndpointConflictWhenBusy(t *testing.T) {
	manager := &fakeManager{syncErr: syncpkg.ErrSyncInProgress}
	handler := newTestServer(manager, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestTriggerReconcileEndpointGuardFailure(t *testing.T) {
	manager := &fakeManager{
		reconcileResult: &models.SyncResult{Status: models.SyncStatusError},
		reconcileErr:    errors.New("snapshot is empty but 100 active items exist locally"),
	}
	handler := newTestServer(manager, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/reconcile", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] == "" {
		t.Error("error body missing")
	}
}

func TestMatchMoviesRequiresConfirmation(t *testing.T) {
	manager := &fakeManager{matchResult: &models.SyncResult{Status: models.SyncStatusSuccess}}
	handler := newTestServer(manager, nil, nil)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantRun  bool
	}{
		{"no confirm parameter", "/api/maintenance/match-movies", http.StatusBadRequest, false},
		{"wrong confirm value", "/api/maintenance/match-movies?confirm=true", http.StatusBadRequest, false},
		{"confirmed", "/api/maintenance/match-movies?confirm=yes", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := manager.matchCalls
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.target, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if ran := manager.matchCalls > before; ran != tt.wantRun {
				t.Errorf("matcher ran = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}

func TestPreviewMovieMatchesEndpoint(t *testing.T) {
	manager := &fakeManager{
		previews: []syncpkg.MovieMatchPreview{
			{OldID: "old-m", NewID: "new-m", Name: "Dune"},
		},
	}
	handler := newTestServer(manager, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/maintenance/match-movies", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if manager.matchCalls != 0 {
		t.Error("preview must not run the migration")
	}
	var body struct {
		Count   int                         `json:"count"`
		Matches []syncpkg.MovieMatchPreview `json:"matches"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 1 || len(body.Matches) != 1 {
		t.Fatalf("count = %d with %d matches, want 1 and 1", body.Count, len(body.Matches))
	}
	if body.Matches[0].OldID != "old-m" || body.Matches[0].NewID != "new-m" {
		t.Errorf("pairing = %s -> %s, want old-m -> new-m", body.Matches[0].OldID, body.Matches[0].NewID)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status syncpkg.Status
	decodeBody(t, rec, &status)
	if status.ServerID != "srv-1" {
		t.Errorf("ServerID = %q, want srv-1", status.ServerID)
	}
}

func TestRecentActivitiesEndpoint(t *testing.T) {
	store := &fakeAPIStore{
		activities: []*models.Activity{
			{ID: 2, ServerID: "srv-1", Name: "login", Date: time.Now()},
			{ID: 1, ServerID: "srv-1", Name: "playback", Date: time.Now()},
		},
	}
	handler := newTestServer(nil, store, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/activities?limit=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.lastLimit != 2 {
		t.Errorf("limit = %d, want 2", store.lastLimit)
	}
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestRecentActivitiesRejectsBadLimit(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	for _, target := range []string{
		"/api/activities?limit=0",
		"/api/activities?limit=-5",
		"/api/activities?limit=9999",
		"/api/activities?limit=abc",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		sourceErr  error
		wantCode   int
		wantStatus string
	}{
		{"all up", nil, nil, http.StatusOK, "ok"},
		{"jellyfin down is degraded", nil, errors.New("refused"), http.StatusOK, "degraded"},
		{"database down is unavailable", errors.New("io error"), nil, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(nil, &fakeAPIStore{pingErr: tt.dbErr}, &fakePinger{err: tt.sourceErr})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]interface{}
			decodeBody(t, rec, &body)
			if body["status"] != tt.wantStatus {
				t.Errorf("status field = %v, want %s", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	handler := newTestServer(nil, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
