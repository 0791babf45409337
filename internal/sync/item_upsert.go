// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
item_upsert.go - Item classification and persistence

Every fetched item is classified against its stored row before touching
the database: new IDs insert, changed rows update, everything else is
counted unchanged and skipped. The cheap etag comparison short-circuits
the field diff, with one exception: a row whose stored provider IDs lag
behind the source is updated even under an equal etag, because provider
IDs are the strongest re-identification signal and are worth backfilling
the moment the source exposes them.

An ID unknown locally is not inserted blindly. It is first matched
against the soft-deleted rows of the server; a hit means the item was
re-added under a fresh Jellyfin ID, so the insert becomes a migration:
the new row is written, references are rewritten from the old row to it,
and only then is the old row removed.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okatz/mediatheca/internal/database"
	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

type upsertOutcome int

const (
	outcomeInsert upsertOutcome = iota
	outcomeUpdate
	outcomeUnchanged
)

// ItemUpserter applies fetched items to the store. events may be nil.
type ItemUpserter struct {
	store  Store
	events EventPublisher
}

// NewItemUpserter builds an upserter over the given store.
func NewItemUpserter(store Store, events EventPublisher) *ItemUpserter {
	return &ItemUpserter{store: store, events: events}
}

// upsertSession holds one library's state for a sync run: the library's
// current rows for classification and the server's soft-deleted rows for
// re-add detection. Apply is safe for concurrent use by page workers.
type upsertSession struct {
	u         *ItemUpserter
	serverID  string
	libraryID string
	tracker   *Tracker

	existing map[string]*models.Item // read-only after NewSession

	mu       sync.Mutex
	matcher  *IdentityMatcher
	consumed map[string]bool // old IDs already migrated this run
}

// NewSession loads the library's current rows and the server's deleted
// rows and returns a session ready to apply fetched items.
func (u *ItemUpserter) NewSession(ctx context.Context, serverID, libraryID string, tracker *Tracker) (*upsertSession, error) {
	rows, err := u.store.ListItemsByLibrary(ctx, serverID, libraryID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing items for library %s: %w", libraryID, err)
	}
	tracker.AddDBOperation()

	existing := make(map[string]*models.Item, len(rows))
	for _, row := range rows {
		existing[row.ID] = row
	}

	deleted, err := u.store.ListDeletedItems(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deleted items for server %s: %w", serverID, err)
	}
	tracker.AddDBOperation()

	candidates := make([]*models.MinimalItem, 0, len(deleted))
	for _, row := range deleted {
		candidates = append(candidates, row.Minimal())
	}

	return &upsertSession{
		u:         u,
		serverID:  serverID,
		libraryID: libraryID,
		tracker:   tracker,
		existing:  existing,
		matcher:   NewIdentityMatcher(candidates),
		consumed:  make(map[string]bool),
	}, nil
}

// Apply classifies and persists one fetched item. Failures are recorded on
// the tracker and never abort the page; the engine does not give up a
// whole library because one row failed.
func (s *upsertSession) Apply(ctx context.Context, dto *models.JellyfinItem) {
	if dto.ID == "" {
		s.tracker.AddError("item_upsert", fmt.Errorf("item with empty ID in library %s skipped", s.libraryID))
		return
	}

	incoming := mapJellyfinItem(s.serverID, s.libraryID, dto)

	prior := s.existing[dto.ID]
	if prior == nil {
		// An item moved between libraries still has its row under the
		// old library; look it up by ID before treating it as new.
		var err error
		prior, err = s.u.lookupItem(ctx, dto.ID)
		if err != nil {
			s.tracker.AddError("item_upsert", fmt.Errorf("lookup of item %s failed: %v", dto.ID, err))
			return
		}
	}

	switch classifyItem(prior, incoming) {
	case outcomeUnchanged:
		s.tracker.AddUnchanged()
		metrics.SyncRecordsProcessed.WithLabelValues("items", "unchanged").Inc()
	case outcomeInsert:
		if err := s.u.store.UpsertItem(ctx, incoming); err != nil {
			s.tracker.AddError("item_upsert", err)
			return
		}
		s.tracker.AddDBOperation()
		s.tracker.AddInserted()
		metrics.SyncRecordsProcessed.WithLabelValues("items", "inserted").Inc()
		s.migrateReAdd(ctx, incoming)
	case outcomeUpdate:
		if err := s.u.store.UpsertItem(ctx, incoming); err != nil {
			s.tracker.AddError("item_upsert", err)
			return
		}
		s.tracker.AddDBOperation()
		s.tracker.AddUpdated()
		metrics.SyncRecordsProcessed.WithLabelValues("items", "updated").Inc()
	}
}

// migrateReAdd checks a freshly inserted item against the server's
// soft-deleted rows. On a match the references of the old row are
// rewritten to the new row and the old row is removed, rewrite strictly
// first. A failed rewrite leaves the old row for the reconciler to retry.
func (s *upsertSession) migrateReAdd(ctx context.Context, incoming *models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, strategy := s.matcher.Match(incoming.Minimal())
	if old == nil || old.ID == incoming.ID || s.consumed[old.ID] {
		return
	}

	refs, err := s.u.store.RewriteItemReferences(ctx, old.ID, incoming.ID)
	s.tracker.AddDBOperation()
	if err != nil {
		s.tracker.AddError("item_migrate", fmt.Errorf("reference rewrite %s -> %s: %v", old.ID, incoming.ID, err))
		return
	}

	if err := s.u.store.HardDeleteItem(ctx, old.ID); err != nil {
		s.tracker.AddError("item_migrate", fmt.Errorf("old row removal %s: %v", old.ID, err))
		return
	}
	s.tracker.AddDBOperation()

	s.consumed[old.ID] = true
	s.tracker.AddMigrated()
	s.tracker.AddMigratedRefs(refs)
	metrics.ItemsMigrated.WithLabelValues(strategy).Inc()
	if s.u.events != nil {
		s.u.events.PublishItemMigrated(s.serverID, old.ID, incoming.ID, strategy, refs)
	}

	logging.Info().
		Str("old_id", old.ID).
		Str("new_id", incoming.ID).
		Str("strategy", strategy).
		Int("references", refs).
		Str("name", incoming.Name).
		Msg("Migrated re-added item during sync")
}

func (u *ItemUpserter) lookupItem(ctx context.Context, id string) (*models.Item, error) {
	item, err := u.store.GetItemByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// classifyItem decides whether an incoming item needs writing.
func classifyItem(existing, incoming *models.Item) upsertOutcome {
	if existing == nil {
		return outcomeInsert
	}

	// A soft-deleted row that reappears under the same ID is resurrected.
	if existing.IsDeleted() {
		return outcomeUpdate
	}

	if existing.LibraryID != incoming.LibraryID {
		return outcomeUpdate
	}

	if existing.Etag != nil && incoming.Etag != nil && *existing.Etag == *incoming.Etag {
		if needsProviderBackfill(existing, incoming) {
			return outcomeUpdate
		}
		return outcomeUnchanged
	}

	// No usable etag pair; fall back to the field diff.
	if existing.Etag == nil && incoming.Etag == nil {
		if itemFieldsEqual(existing, incoming) {
			return outcomeUnchanged
		}
		return outcomeUpdate
	}

	return outcomeUpdate
}

// needsProviderBackfill reports whether the source now carries provider IDs
// the stored row lacks or disagrees with.
func needsProviderBackfill(existing, incoming *models.Item) bool {
	for name, id := range incoming.ProviderIDs {
		if existing.ProviderIDs[name] != id {
			return true
		}
	}
	return false
}

// itemFieldsEqual compares the tracked content and image fields.
func itemFieldsEqual(a, b *models.Item) bool {
	return a.Name == b.Name &&
		a.Type == b.Type &&
		strPtrEqual(a.SeriesID, b.SeriesID) &&
		strPtrEqual(a.SeriesName, b.SeriesName) &&
		strPtrEqual(a.SeasonID, b.SeasonID) &&
		intPtrEqual(a.SeasonIndex, b.SeasonIndex) &&
		intPtrEqual(a.EpisodeIndex, b.EpisodeIndex) &&
		intPtrEqual(a.ProductionYear, b.ProductionYear) &&
		timePtrEqual(a.PremiereDate, b.PremiereDate) &&
		timePtrEqual(a.DateCreated, b.DateCreated) &&
		strPtrEqual(a.Path, b.Path) &&
		strPtrEqual(a.Container, b.Container) &&
		floatPtrEqual(a.CommunityRating, b.CommunityRating) &&
		strPtrEqual(a.OfficialRating, b.OfficialRating) &&
		int64PtrEqual(a.RuntimeTicks, b.RuntimeTicks) &&
		stringMapEqual(a.ProviderIDs, b.ProviderIDs) &&
		stringSliceEqual(a.Genres, b.Genres) &&
		stringSliceEqual(a.Tags, b.Tags) &&
		strPtrEqual(a.PrimaryImageTag, b.PrimaryImageTag) &&
		strPtrEqual(a.PrimaryBlurHash, b.PrimaryBlurHash) &&
		stringSliceEqual(a.BackdropImageTags, b.BackdropImageTags)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// timePtrEqual compares instants, not representations. Rows round-trip
// through the database and can come back in a different location.
func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
