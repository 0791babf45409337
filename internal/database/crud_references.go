// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
crud_references.go - Cross-reference maintenance for item migrations

Playback sessions and hidden recommendations point at item rows by the
Jellyfin item ID. When reconciliation matches a soft-deleted item to its
re-added successor, these references are rewritten to the new ID before
the old row is removed, so a crash mid-migration leaves the references
intact rather than dangling.
*/

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// RewriteItemReferences repoints all playback sessions and hidden
// recommendations from oldID to newID. Returns the number of rows rewritten.
func (db *DB) RewriteItemReferences(ctx context.Context, oldID, newID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	total := 0

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE playback_sessions SET item_id = ? WHERE item_id = ?`, newID, oldID)
	metrics.RecordDBQuery("update", "playback_sessions", time.Since(start), err)
	if err != nil {
		return total, fmt.Errorf("failed to rewrite sessions from %s to %s: %w", oldID, newID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		total += int(n)
	}

	start = time.Now()
	res, err = db.conn.ExecContext(ctx,
		`UPDATE hidden_recommendations SET item_id = ? WHERE item_id = ?`, newID, oldID)
	metrics.RecordDBQuery("update", "hidden_recommendations", time.Since(start), err)
	if err != nil {
		return total, fmt.Errorf("failed to rewrite recommendations from %s to %s: %w", oldID, newID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		total += int(n)
	}

	return total, nil
}

// DeleteRecommendationsForItems removes hidden-recommendation rows for items
// that were soft-deleted with no successor. Sessions are intentionally kept;
// they remain meaningful history even when the item is gone.
func (db *DB) DeleteRecommendationsForItems(ctx context.Context, itemIDs []string) (int, error) {
	total := 0
	for start := 0; start < len(itemIDs); start += softDeleteBatchSize {
		end := start + softDeleteBatchSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		n, err := db.deleteRecommendationsBatch(ctx, itemIDs[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (db *DB) deleteRecommendationsBatch(ctx context.Context, itemIDs []string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	placeholders := strings.Repeat("?,", len(itemIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM hidden_recommendations WHERE item_id IN (%s)`, placeholders)

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery("delete", "hidden_recommendations", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recommendations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountReferencesForItem returns how many sessions and recommendations
// point at an item. Used by the maintenance API to preview migrations.
func (db *DB) CountReferencesForItem(ctx context.Context, itemID string) (models.ItemReferences, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var refs models.ItemReferences

	start := time.Now()
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM playback_sessions WHERE item_id = ?`, itemID).Scan(&refs.Sessions)
	metrics.RecordDBQuery("select", "playback_sessions", time.Since(start), err)
	if err != nil {
		return refs, fmt.Errorf("failed to count sessions for item %s: %w", itemID, err)
	}

	start = time.Now()
	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hidden_recommendations WHERE item_id = ?`, itemID).Scan(&refs.Recommendations)
	metrics.RecordDBQuery("select", "hidden_recommendations", time.Since(start), err)
	if err != nil {
		return refs, fmt.Errorf("failed to count recommendations for item %s: %w", itemID, err)
	}

	return refs, nil
}
