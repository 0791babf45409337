// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// syncLibraries refreshes the local library table and returns the current
// set of libraries, which drives the item fetch fan-out.
func (m *Manager) syncLibraries(ctx context.Context, tracker *Tracker) ([]*models.Library, error) {
	start := time.Now()

	var dtos []models.JellyfinLibrary
	err := retryWithBackoff(ctx, m.cfg.Sync.RetryAttempts, m.cfg.Sync.RetryDelay, func() error {
		var fetchErr error
		dtos, fetchErr = m.client.GetLibraries(ctx)
		return fetchErr
	})
	tracker.AddAPIRequest()
	if err != nil {
		metrics.RecordSyncOperation("libraries", time.Since(start), err)
		return nil, fmt.Errorf("library fetch failed: %w", err)
	}

	libraries := make([]*models.Library, 0, len(dtos))
	for i := range dtos {
		lib := mapJellyfinLibrary(m.serverID, &dtos[i])
		if lib.ID == "" {
			tracker.AddError("library_sync", fmt.Errorf("library %q has no item ID, skipped", lib.Name))
			continue
		}
		if err := m.store.UpsertLibrary(ctx, lib); err != nil {
			tracker.AddError("library_sync", err)
			continue
		}
		tracker.AddDBOperation()
		libraries = append(libraries, lib)
	}

	metrics.RecordSyncOperation("libraries", time.Since(start), nil)
	logging.Debug().Int("libraries", len(libraries)).Msg("Library sync complete")
	return libraries, nil
}
