// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
activity_sync.go - Incremental activity-log ingestion

The Jellyfin activity log returns entries newest-first with monotonically
increasing IDs, which makes the highest stored ID a natural cursor: scan
from the top, collect entries above the watermark, and stop the moment an
already-stored ID appears. A safety bound caps the scan at a configurable
multiple of the page size so a corrupted or rotated log cannot turn an
incremental sync into an unbounded walk.
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

// ActivitySyncer ingests activity-log entries incrementally.
type ActivitySyncer struct {
	client   JellyfinClientInterface
	store    Store
	serverID string

	pageSize         int
	safetyMultiplier int

	retryAttempts int
	retryDelay    time.Duration
}

// NewActivitySyncer builds an activity syncer for one server.
func NewActivitySyncer(client JellyfinClientInterface, store Store, serverID string, pageSize, safetyMultiplier, retryAttempts int, retryDelay time.Duration) *ActivitySyncer {
	return &ActivitySyncer{
		client:           client,
		store:            store,
		serverID:         serverID,
		pageSize:         pageSize,
		safetyMultiplier: safetyMultiplier,
		retryAttempts:    retryAttempts,
		retryDelay:       retryDelay,
	}
}

// Run performs one incremental activity sync.
func (s *ActivitySyncer) Run(ctx context.Context, tracker *Tracker) error {
	watermark, haveWatermark, err := s.store.LatestActivityID(ctx, s.serverID)
	tracker.AddDBOperation()
	if err != nil {
		return fmt.Errorf("watermark lookup failed: %w", err)
	}

	knownUsers, err := s.store.ListUserIDs(ctx, s.serverID)
	tracker.AddDBOperation()
	if err != nil {
		return fmt.Errorf("user listing failed: %w", err)
	}

	maxScanned := s.pageSize * s.safetyMultiplier
	var collected []*models.Activity
	startIndex := 0
	scanned := 0
	foundWatermark := !haveWatermark

scan:
	for scanned < maxScanned {
		var page *models.JellyfinActivityPage
		err := retryWithBackoff(ctx, s.retryAttempts, s.retryDelay, func() error {
			var fetchErr error
			page, fetchErr = s.client.GetActivities(ctx, startIndex, s.pageSize)
			return fetchErr
		})
		tracker.AddAPIRequest()
		if err != nil {
			return fmt.Errorf("activity page fetch at index %d failed: %w", startIndex, err)
		}

		if len(page.Items) == 0 {
			foundWatermark = true
			break
		}

		for i := range page.Items {
			entry := &page.Items[i]
			scanned++

			// Entries at or below the watermark are already stored; the
			// newest-first ordering means everything after them is too.
			if haveWatermark && entry.ID <= watermark {
				foundWatermark = true
				break scan
			}

			collected = append(collected, mapJellyfinActivity(s.serverID, entry, knownUsers))

			if scanned >= maxScanned {
				break scan
			}
		}

		startIndex += len(page.Items)
		if startIndex >= page.TotalRecordCount {
			foundWatermark = true
			break
		}
	}

	if !foundWatermark {
		metrics.ActivitySafetyBoundHits.Inc()
		logging.Warn().
			Int64("watermark", watermark).
			Int("scanned", scanned).
			Int("safety_bound", maxScanned).
			Msg("Activity watermark not found within safety bound; storing collected entries and resetting cursor")
	}

	if len(collected) == 0 {
		logging.Debug().Int64("watermark", watermark).Msg("No new activity entries")
		return nil
	}

	inserted, err := s.store.InsertActivities(ctx, collected)
	tracker.AddDBOperation()
	if err != nil {
		return fmt.Errorf("activity insert failed after %d rows: %w", inserted, err)
	}

	tracker.AddFetched(len(collected))
	for i := 0; i < inserted; i++ {
		tracker.AddInserted()
	}

	// The newest collected entry is the new watermark; entries arrive
	// newest-first, so it is the first one.
	metrics.ActivityWatermark.Set(float64(collected[0].ID))

	logging.Info().
		Int("collected", len(collected)).
		Int("inserted", inserted).
		Int64("new_watermark", collected[0].ID).
		Msg("Activity sync complete")

	return nil
}
