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

// syncUsers refreshes the local user table from the server. Users must be
// current before activity ingestion so user references resolve.
func (m *Manager) syncUsers(ctx context.Context, tracker *Tracker) error {
	start := time.Now()

	var users []models.JellyfinUser
	err := retryWithBackoff(ctx, m.cfg.Sync.RetryAttempts, m.cfg.Sync.RetryDelay, func() error {
		var fetchErr error
		users, fetchErr = m.client.GetUsers(ctx)
		return fetchErr
	})
	tracker.AddAPIRequest()
	if err != nil {
		metrics.RecordSyncOperation("users", time.Since(start), err)
		return fmt.Errorf("user fetch failed: %w", err)
	}

	for i := range users {
		user := mapJellyfinUser(m.serverID, &users[i])
		if err := m.store.UpsertUser(ctx, user); err != nil {
			tracker.AddError("user_sync", err)
			continue
		}
		tracker.AddDBOperation()
	}

	metrics.RecordSyncOperation("users", time.Since(start), nil)
	logging.Debug().Int("users", len(users)).Msg("User sync complete")
	return nil
}
