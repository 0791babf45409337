// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
manager.go - Sync manager lifecycle and orchestration

The Manager owns one Jellyfin server's sync pipeline and its schedules:

  - Full sync: users -> libraries -> items -> activities. Stage failures
    are collected; later stages still run when their inputs allow it.
  - Reconciliation: deleted-item detection with migration, on its own
    slower schedule.

Thread safety: syncMu serializes sync and reconciliation runs against the
same server, so a manual trigger cannot interleave with a scheduled run.
mu protects the published status snapshot.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okatz/mediatheca/internal/config"
	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// ErrSyncInProgress is returned by the manual triggers when another sync
// or reconcile run already holds the manager. The scheduled loops retry
// on their next tick instead of queueing behind the running pass.
var ErrSyncInProgress = errors.New("sync already in progress")

// EventPublisher receives run outcomes for interested subscribers. The
// events.Bus satisfies it.
type EventPublisher interface {
	PublishSyncCompleted(serverID, operation string, result *models.SyncResult)
	PublishItemMigrated(serverID, oldID, newID, strategy string, references int)
}

// Status is the externally visible state of the manager.
type Status struct {
	ServerID          string             `json:"server_id"`
	ServerName        string             `json:"server_name"`
	Running           bool               `json:"running"`
	SyncInProgress    bool               `json:"sync_in_progress"`
	LastSyncAt        *time.Time         `json:"last_sync_at,omitempty"`
	LastSyncResult    *models.SyncResult `json:"last_sync_result,omitempty"`
	LastReconcileAt   *time.Time         `json:"last_reconcile_at,omitempty"`
	LastReconcile     *models.SyncResult `json:"last_reconcile_result,omitempty"`
	NextSyncAt        *time.Time         `json:"next_sync_at,omitempty"`
	NextReconcileAt   *time.Time         `json:"next_reconcile_at,omitempty"`
	ActiveItems       int                `json:"active_items"`
	ActiveItemsKnown  bool               `json:"-"`
}

// Manager orchestrates sync and reconciliation for one Jellyfin server.
type Manager struct {
	cfg    *config.Config
	client JellyfinClientInterface
	store  Store
	events EventPublisher

	fetcher  *PagedFetcher
	upserter *ItemUpserter

	serverID   string
	serverName string

	syncMu sync.Mutex // serializes sync and reconcile runs

	mu              sync.RWMutex
	running         bool
	syncInProgress  bool
	lastSyncAt      *time.Time
	lastSyncResult  *models.SyncResult
	lastReconcileAt *time.Time
	lastReconcile   *models.SyncResult

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a manager. events may be nil.
func NewManager(cfg *config.Config, client JellyfinClientInterface, store Store, events EventPublisher) *Manager {
	return &Manager{
		cfg:    cfg,
		client: client,
		store:  store,
		events: events,
		fetcher: NewPagedFetcher(
			client,
			cfg.Jellyfin.PageSize,
			cfg.Jellyfin.MaxPages,
			cfg.Jellyfin.Workers,
			cfg.Jellyfin.PageDelay,
			cfg.Sync.RetryAttempts,
			cfg.Sync.RetryDelay,
		),
		upserter: NewItemUpserter(store, events),
		stopChan: make(chan struct{}),
	}
}

// Start registers the server row and launches the periodic loops. The
// initial sync runs in the background so startup is not blocked by a slow
// or unreachable Jellyfin.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if err := m.registerServer(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("server registration failed: %w", err)
	}

	logging.Info().
		Str("server_id", m.serverID).
		Dur("sync_interval", m.cfg.Sync.Interval).
		Dur("reconcile_interval", m.cfg.Sync.ReconcileInterval).
		Msg("Starting sync manager")

	m.wg.Add(3)

	go func() {
		defer m.wg.Done()
		if _, err := m.TriggerSync(context.Background()); err != nil {
			logging.Warn().Err(err).Msg("Initial sync failed (will retry on schedule)")
		}
	}()

	go m.syncLoop(ctx)
	go m.reconcileLoop(ctx)

	return nil
}

// Stop shuts the loops down and waits for in-flight runs to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	close(m.stopChan)
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// registerServer resolves the server identity and upserts its row. The
// configured server ID wins; otherwise the Jellyfin system ID is used, and
// a random UUID only when even that is unavailable.
func (m *Manager) registerServer(ctx context.Context) error {
	m.serverID = m.cfg.Jellyfin.ServerID
	m.serverName = "jellyfin"

	info, err := m.client.GetSystemInfo(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Could not fetch system info during startup")
	} else {
		m.serverName = info.ServerName
		if m.serverID == "" {
			m.serverID = info.ID
		}
	}
	if m.serverID == "" {
		m.serverID = uuid.NewString()
		logging.Warn().Str("server_id", m.serverID).Msg("No server ID configured or discoverable, generated one")
	}

	return m.store.UpsertServer(ctx, &models.Server{
		ID:   m.serverID,
		Name: m.serverName,
		URL:  m.cfg.Jellyfin.BaseURL(),
	})
}

func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			if _, err := m.TriggerSync(ctx); err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					logging.Debug().Msg("Scheduled sync skipped, another run is active")
					continue
				}
				logging.Error().Err(err).Msg("Scheduled sync failed")
			}
		}
	}
}

func (m *Manager) reconcileLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Sync.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			if _, err := m.TriggerReconcile(ctx); err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					logging.Debug().Msg("Scheduled reconciliation skipped, another run is active")
					continue
				}
				logging.Error().Err(err).Msg("Scheduled reconciliation failed")
			}
		}
	}
}

// TriggerSync runs one full sync: users, libraries, items, activities.
// Returns ErrSyncInProgress when another run holds the manager.
func (m *Manager) TriggerSync(ctx context.Context) (*models.SyncResult, error) {
	if !m.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer m.syncMu.Unlock()

	m.setSyncInProgress(true)
	defer m.setSyncInProgress(false)

	start := time.Now()
	tracker := NewTracker()
	logging.Info().Str("server_id", m.serverID).Msg("Full sync started")

	// Users first so activity ingestion can resolve user references.
	if err := m.syncUsers(ctx, tracker); err != nil {
		tracker.AddError("user_sync", err)
	}

	libraries, err := m.syncLibraries(ctx, tracker)
	if err != nil {
		// Without libraries there is nothing to fetch; the run is over.
		tracker.AddError("library_sync", err)
		result := tracker.Finalize()
		m.recordSyncOutcome(result, start)
		return result, err
	}

	m.syncItems(ctx, libraries, tracker)

	if err := m.syncActivities(ctx, tracker); err != nil {
		tracker.AddError("activity_sync", err)
	}

	if err := m.store.TouchServerSync(ctx, m.serverID, time.Now().UTC()); err != nil {
		tracker.AddError("sync_stamp", err)
	}

	result := tracker.Finalize()
	m.recordSyncOutcome(result, start)

	logging.Info().
		Str("status", string(result.Status)).
		Int("fetched", result.Counts.Fetched).
		Int("inserted", result.Counts.Inserted).
		Int("updated", result.Counts.Updated).
		Int("unchanged", result.Counts.Unchanged).
		Int("errors", result.Counts.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("Full sync finished")

	return result, nil
}

// syncItems walks the libraries one at a time by default, streaming each
// through the page fetcher into an upsert session. A failed library is
// recorded and skipped; it keeps its current rows until a later run
// succeeds. Setting jellyfin.library_concurrency above 1 fans libraries
// out across a bounded pool for large multi-library servers.
func (m *Manager) syncItems(ctx context.Context, libraries []*models.Library, tracker *Tracker) {
	start := time.Now()

	concurrency := m.cfg.Jellyfin.LibraryConcurrency
	if concurrency <= 1 {
		for _, lib := range libraries {
			m.syncOneLibrary(ctx, lib, tracker)
		}
		metrics.RecordSyncOperation("items", time.Since(start), nil)
		return
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, lib := range libraries {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(lib *models.Library) {
			defer wg.Done()
			defer func() { <-sem }()
			m.syncOneLibrary(ctx, lib, tracker)
		}(lib)
	}
	wg.Wait()

	metrics.RecordSyncOperation("items", time.Since(start), nil)
}

func (m *Manager) syncOneLibrary(ctx context.Context, lib *models.Library, tracker *Tracker) {
	session, err := m.upserter.NewSession(ctx, m.serverID, lib.ID, tracker)
	if err != nil {
		tracker.AddError("item_upsert", fmt.Errorf("library %s: %v", lib.ID, err))
		return
	}
	if err := m.fetcher.SyncLibraryItems(ctx, lib.ID, tracker, session.Apply); err != nil {
		tracker.AddError("item_fetch", fmt.Errorf("library %s: %v", lib.ID, err))
	}
}

func (m *Manager) syncActivities(ctx context.Context, tracker *Tracker) error {
	start := time.Now()
	syncer := NewActivitySyncer(
		m.client, m.store, m.serverID,
		m.cfg.Sync.ActivityPageSize,
		m.cfg.Sync.ActivitySafetyMultiplier,
		m.cfg.Sync.RetryAttempts,
		m.cfg.Sync.RetryDelay,
	)
	err := syncer.Run(ctx, tracker)
	metrics.RecordSyncOperation("activities", time.Since(start), err)
	return err
}

// TriggerReconcile runs one reconciliation pass. Serialized with sync
// runs; returns ErrSyncInProgress when one is already active.
func (m *Manager) TriggerReconcile(ctx context.Context) (*models.SyncResult, error) {
	if !m.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer m.syncMu.Unlock()

	m.setSyncInProgress(true)
	defer m.setSyncInProgress(false)

	reconciler := NewReconciler(m.client, m.store, m.events, m.serverID, m.cfg.Sync.RetryAttempts, m.cfg.Sync.RetryDelay)
	result, err := reconciler.Run(ctx)

	now := time.Now()
	m.mu.Lock()
	m.lastReconcileAt = &now
	m.lastReconcile = result
	m.mu.Unlock()

	if m.events != nil && result != nil {
		m.events.PublishSyncCompleted(m.serverID, "reconcile", result)
	}

	return result, err
}

// MovieMatchPreview is one proposed movie pairing with the reference
// counts that would move, so the operator can judge before confirming.
type MovieMatchPreview struct {
	OldID          string                `json:"old_id"`
	NewID          string                `json:"new_id"`
	Name           string                `json:"name"`
	ProductionYear *int                  `json:"production_year,omitempty"`
	References     models.ItemReferences `json:"references"`
}

// PreviewMovieMatches computes the pairings MatchMovies would apply
// without mutating anything.
func (m *Manager) PreviewMovieMatches(ctx context.Context) ([]MovieMatchPreview, error) {
	deleted, actives, err := m.loadMovieMatchInputs(ctx)
	if err != nil {
		return nil, err
	}

	matches := MatchMoviesByNameYear(deleted, actives)
	previews := make([]MovieMatchPreview, 0, len(matches))
	for old, successor := range matches {
		refs, err := m.store.CountReferencesForItem(ctx, old.ID)
		if err != nil {
			return nil, fmt.Errorf("reference count for %s: %w", old.ID, err)
		}
		previews = append(previews, MovieMatchPreview{
			OldID:          old.ID,
			NewID:          successor.ID,
			Name:           old.Name,
			ProductionYear: old.ProductionYear,
			References:     refs,
		})
	}
	return previews, nil
}

func (m *Manager) loadMovieMatchInputs(ctx context.Context) (deleted, actives []*models.Item, err error) {
	deleted, err = m.store.ListDeletedItems(ctx, m.serverID)
	if err != nil {
		return nil, nil, err
	}

	libraries, err := m.store.ListLibraries(ctx, m.serverID)
	if err != nil {
		return nil, nil, err
	}
	for _, lib := range libraries {
		items, err := m.store.ListItemsByLibrary(ctx, m.serverID, lib.ID, false)
		if err != nil {
			return nil, nil, err
		}
		actives = append(actives, items...)
	}
	return deleted, actives, nil
}

// MatchMovies runs the operator-confirmed movie re-identification pass:
// soft-deleted movies are paired with active movies by exact name and year
// and migrated like any other match. Never scheduled; only the maintenance
// endpoint reaches this.
func (m *Manager) MatchMovies(ctx context.Context) (*models.SyncResult, error) {
	if !m.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer m.syncMu.Unlock()

	tracker := NewTracker()

	deleted, actives, err := m.loadMovieMatchInputs(ctx)
	if err != nil {
		return tracker.Fail("movie_match", err), err
	}

	matches := MatchMoviesByNameYear(deleted, actives)
	for old, successor := range matches {
		refs, err := m.store.RewriteItemReferences(ctx, old.ID, successor.ID)
		if err != nil {
			tracker.AddError("movie_match", fmt.Errorf("reference rewrite %s -> %s: %v", old.ID, successor.ID, err))
			continue
		}
		if err := m.store.HardDeleteItem(ctx, old.ID); err != nil {
			tracker.AddError("movie_match", fmt.Errorf("old row removal %s: %v", old.ID, err))
			continue
		}

		tracker.AddMigrated()
		tracker.AddMigratedRefs(refs)
		metrics.ItemsMigrated.WithLabelValues(StrategyMovieManual).Inc()
		if m.events != nil {
			m.events.PublishItemMigrated(m.serverID, old.ID, successor.ID, StrategyMovieManual, refs)
		}

		logging.Info().
			Str("old_id", old.ID).
			Str("new_id", successor.ID).
			Str("name", old.Name).
			Int("references", refs).
			Msg("Migrated movie by operator-confirmed name+year match")
	}

	return tracker.Finalize(), nil
}

// Status returns a snapshot of the manager state. Run stamps missing
// from memory, as after a process or supervisor restart, fall back to
// the timestamps persisted on the server row.
func (m *Manager) Status(ctx context.Context) *Status {
	m.mu.RLock()
	st := &Status{
		ServerID:        m.serverID,
		ServerName:      m.serverName,
		Running:         m.running,
		SyncInProgress:  m.syncInProgress,
		LastSyncAt:      m.lastSyncAt,
		LastSyncResult:  m.lastSyncResult,
		LastReconcileAt: m.lastReconcileAt,
		LastReconcile:   m.lastReconcile,
	}
	m.mu.RUnlock()

	if st.LastSyncAt == nil || st.LastReconcileAt == nil {
		if srv, err := m.store.GetServer(ctx, st.ServerID); err == nil {
			if st.LastSyncAt == nil {
				st.LastSyncAt = srv.LastSyncAt
			}
			if st.LastReconcileAt == nil {
				st.LastReconcileAt = srv.LastReconcileAt
			}
		}
	}

	if st.LastSyncAt != nil {
		next := st.LastSyncAt.Add(m.cfg.Sync.Interval)
		st.NextSyncAt = &next
	}
	if st.LastReconcileAt != nil {
		next := st.LastReconcileAt.Add(m.cfg.Sync.ReconcileInterval)
		st.NextReconcileAt = &next
	}

	if count, err := m.store.CountActiveItems(ctx, m.serverID); err == nil {
		st.ActiveItems = count
		st.ActiveItemsKnown = true
	}

	return st
}

// ServerID returns the resolved server identity.
func (m *Manager) ServerID() string {
	return m.serverID
}

func (m *Manager) setSyncInProgress(v bool) {
	m.mu.Lock()
	m.syncInProgress = v
	m.mu.Unlock()
}

func (m *Manager) recordSyncOutcome(result *models.SyncResult, start time.Time) {
	now := time.Now()
	m.mu.Lock()
	m.lastSyncAt = &now
	m.lastSyncResult = result
	m.mu.Unlock()

	metrics.RecordSyncOperation("full_sync", time.Since(start), nil)
	if m.events != nil {
		m.events.PublishSyncCompleted(m.serverID, "sync", result)
	}
}
