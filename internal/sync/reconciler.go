// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
reconciler.go - Deleted-item detection and migration

Reconciliation answers the question item sync cannot: which local rows no
longer exist at the source. It runs as a strict sequence:

 1. Snapshot: fetch the complete minimal inventory from the server.
 2. Health guards: an unreachable source, or an empty snapshot while the
    local database has active items, aborts the run before any mutation.
    A wedged or half-started Jellyfin must never look like a mass delete.
 3. Diff: per library, active local IDs absent from the snapshot are
    soft-deleted in batches.
 4. Migration: each soft-deleted row is matched against the snapshot; on
    a match, cross-references are rewritten to the successor first and
    the old row removed second, so an interrupted migration leaves valid
    references behind. Matching against the snapshot rather than local
    rows means a re-added item migrates the moment the source shows it,
    even before item sync has written its new row.
 5. Cascade: hidden recommendations of rows that stayed deleted are
    removed. Playback history is kept.
*/

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// Reconciler detects and processes source-side deletions.
type Reconciler struct {
	client   JellyfinClientInterface
	store    Store
	events   EventPublisher
	serverID string

	retryAttempts int
	retryDelay    time.Duration
}

// NewReconciler builds a reconciler for one server. events may be nil.
func NewReconciler(client JellyfinClientInterface, store Store, events EventPublisher, serverID string, retryAttempts int, retryDelay time.Duration) *Reconciler {
	return &Reconciler{
		client:        client,
		store:         store,
		events:        events,
		serverID:      serverID,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

// Run executes one reconciliation pass. The returned result is never nil;
// guard aborts come back with status error, zero mutation counts and a
// non-nil error.
func (r *Reconciler) Run(ctx context.Context) (*models.SyncResult, error) {
	tracker := NewTracker()
	start := time.Now()

	// Stage 1: global minimal snapshot.
	var snapshot []models.JellyfinItem
	err := retryWithBackoff(ctx, r.retryAttempts, r.retryDelay, func() error {
		var fetchErr error
		snapshot, fetchErr = r.client.GetAllItemsMinimal(ctx)
		return fetchErr
	})
	tracker.AddAPIRequest()
	if err != nil {
		metrics.ReconcileAborts.WithLabelValues("source_unreachable").Inc()
		logging.Error().Err(err).Msg("Reconciliation aborted: source unreachable, no mutations applied")
		return tracker.Fail("reconcile_snapshot", err), fmt.Errorf("snapshot fetch failed: %w", err)
	}

	// Stage 2: empty-snapshot guard.
	activeCount, err := r.store.CountActiveItems(ctx, r.serverID)
	tracker.AddDBOperation()
	if err != nil {
		return tracker.Fail("reconcile_count", err), fmt.Errorf("active item count failed: %w", err)
	}
	if len(snapshot) == 0 && activeCount > 0 {
		metrics.ReconcileAborts.WithLabelValues("empty_snapshot").Inc()
		err := fmt.Errorf("snapshot is empty but %d active items exist locally", activeCount)
		logging.Error().Int("local_active", activeCount).Msg("Reconciliation aborted: empty snapshot against non-empty local state, no mutations applied")
		return tracker.Fail("reconcile_guard", err), err
	}

	// Index the snapshot both by ID and for identity matching. The minimal
	// projection carries provider IDs and the structural fields, which is
	// all the matcher needs.
	present := make(map[string]struct{}, len(snapshot))
	remote := make([]*models.MinimalItem, 0, len(snapshot))
	for i := range snapshot {
		present[snapshot[i].ID] = struct{}{}
		remote = append(remote, mapMinimalItem(&snapshot[i]))
	}
	matcher := NewIdentityMatcher(remote)

	// Stage 3: per-library diff and batch soft-delete.
	libraries, err := r.store.ListLibraries(ctx, r.serverID)
	tracker.AddDBOperation()
	if err != nil {
		return tracker.Fail("reconcile_libraries", err), fmt.Errorf("library listing failed: %w", err)
	}

	now := time.Now().UTC()
	var softDeleted []string
	for _, lib := range libraries {
		localIDs, err := r.store.ListActiveItemIDsByLibrary(ctx, r.serverID, lib.ID)
		tracker.AddDBOperation()
		if err != nil {
			tracker.AddError("reconcile_diff", fmt.Errorf("library %s: %v", lib.ID, err))
			continue
		}

		var missing []string
		for id := range localIDs {
			if _, ok := present[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			continue
		}

		n, err := r.store.SoftDeleteItems(ctx, missing, now)
		tracker.AddDBOperation()
		tracker.AddSoftDeleted(n)
		metrics.ItemsSoftDeleted.Add(float64(n))
		if err != nil {
			tracker.AddError("reconcile_soft_delete", fmt.Errorf("library %s: %v", lib.ID, err))
			continue
		}
		softDeleted = append(softDeleted, missing...)

		logging.Info().
			Str("library_id", lib.ID).
			Str("library", lib.Name).
			Int("soft_deleted", n).
			Msg("Soft-deleted items missing from snapshot")
	}

	// Stage 4: sequential migrations.
	matched, err := r.migrate(ctx, tracker, matcher, present)
	if err != nil {
		tracker.AddError("reconcile_migrate", err)
	}

	// Stage 5: recommendation cascade for rows that stayed deleted and
	// have no successor in the snapshot.
	var unmigrated []string
	for _, id := range softDeleted {
		if _, ok := matched[id]; !ok {
			unmigrated = append(unmigrated, id)
		}
	}
	if len(unmigrated) > 0 {
		if _, err := r.store.DeleteRecommendationsForItems(ctx, unmigrated); err != nil {
			tracker.AddError("reconcile_cascade", err)
		}
		tracker.AddDBOperation()
	}

	if err := r.store.TouchServerReconcile(ctx, r.serverID, time.Now().UTC()); err != nil {
		tracker.AddError("reconcile_stamp", err)
	}

	result := tracker.Finalize()
	metrics.RecordSyncOperation("reconcile", time.Since(start), nil)
	logging.Info().
		Int("soft_deleted", result.Counts.SoftDeleted).
		Int("migrated", result.Counts.Migrated).
		Int("migrated_refs", result.Counts.MigratedRefs).
		Int("errors", result.Counts.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("Reconciliation complete")

	return result, nil
}

// migrate walks all soft-deleted rows of the server, matches each against
// the snapshot and performs reference rewrites. Migrations run strictly
// sequentially; reference rewrites always precede old-row removal.
// Returns the set of old IDs with a snapshot match, including rows whose
// migration failed partway: those retry next run and must not cascade.
func (r *Reconciler) migrate(ctx context.Context, tracker *Tracker, matcher *IdentityMatcher, present map[string]struct{}) (map[string]struct{}, error) {
	deleted, err := r.store.ListDeletedItems(ctx, r.serverID)
	tracker.AddDBOperation()
	if err != nil {
		return nil, fmt.Errorf("deleted item listing failed: %w", err)
	}
	if len(deleted) == 0 {
		return nil, nil
	}

	matched := make(map[string]struct{})

	for _, old := range deleted {
		if ctx.Err() != nil {
			return matched, ctx.Err()
		}

		// A deleted row whose own ID is back in the snapshot will be
		// resurrected by the next item sync; nothing to migrate.
		if _, ok := present[old.ID]; ok {
			continue
		}

		successor, strategy := matcher.Match(old.Minimal())
		if successor == nil || successor.ID == old.ID {
			continue
		}
		matched[old.ID] = struct{}{}

		refs, err := r.store.RewriteItemReferences(ctx, old.ID, successor.ID)
		tracker.AddDBOperation()
		if err != nil {
			// References were not (fully) rewritten; keep the old row so
			// nothing dangles and retry next run.
			tracker.AddError("reconcile_migrate", fmt.Errorf("reference rewrite %s -> %s: %v", old.ID, successor.ID, err))
			continue
		}

		if err := r.store.HardDeleteItem(ctx, old.ID); err != nil {
			tracker.AddError("reconcile_migrate", fmt.Errorf("old row removal %s: %v", old.ID, err))
			continue
		}
		tracker.AddDBOperation()

		tracker.AddMigrated()
		tracker.AddMigratedRefs(refs)
		metrics.ItemsMigrated.WithLabelValues(strategy).Inc()
		if r.events != nil {
			r.events.PublishItemMigrated(r.serverID, old.ID, successor.ID, strategy, refs)
		}

		logging.Info().
			Str("old_id", old.ID).
			Str("new_id", successor.ID).
			Str("strategy", strategy).
			Int("references", refs).
			Str("name", old.Name).
			Msg("Migrated item to re-added successor")
	}

	return matched, nil
}
