// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// UpsertLibrary inserts or updates a library row keyed on the Jellyfin
// virtual-folder ID.
func (db *DB) UpsertLibrary(ctx context.Context, lib *models.Library) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	locations, err := marshalJSONField(lib.Locations)
	if err != nil {
		return fmt.Errorf("failed to encode locations for library %s: %w", lib.ID, err)
	}

	query := `INSERT INTO libraries (
		id, server_id, name, collection_type, locations, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO UPDATE SET
		server_id = EXCLUDED.server_id,
		name = EXCLUDED.name,
		collection_type = EXCLUDED.collection_type,
		locations = EXCLUDED.locations,
		updated_at = CURRENT_TIMESTAMP`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, query,
		lib.ID, lib.ServerID, lib.Name, lib.CollectionType, locations)
	metrics.RecordDBQuery("upsert", "libraries", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert library %s: %w", lib.ID, err)
	}
	return nil
}

// ListLibraries returns all library rows for a server.
func (db *DB) ListLibraries(ctx context.Context, serverID string) ([]*models.Library, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_id, name, collection_type, locations, created_at, updated_at
		FROM libraries WHERE server_id = ? ORDER BY name`, serverID)
	metrics.RecordDBQuery("select", "libraries", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()

	var libs []*models.Library
	for rows.Next() {
		var (
			lib       models.Library
			collType  sql.NullString
			locations sql.NullString
		)
		if err := rows.Scan(&lib.ID, &lib.ServerID, &lib.Name, &collType, &locations,
			&lib.CreatedAt, &lib.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan library row: %w", err)
		}
		lib.CollectionType = collType.String
		if err := unmarshalJSONField(locations, &lib.Locations); err != nil {
			return nil, fmt.Errorf("failed to decode locations for library %s: %w", lib.ID, err)
		}
		libs = append(libs, &lib)
	}
	return libs, rows.Err()
}
