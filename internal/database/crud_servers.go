// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// UpsertServer inserts or updates a server row.
func (db *DB) UpsertServer(ctx context.Context, srv *models.Server) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO servers (id, name, url, created_at, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		url = EXCLUDED.url,
		updated_at = CURRENT_TIMESTAMP`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query, srv.ID, srv.Name, srv.URL)
	metrics.RecordDBQuery("upsert", "servers", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert server %s: %w", srv.ID, err)
	}
	return nil
}

// GetServer fetches a server row. Returns ErrNotFound when no row matches.
func (db *DB) GetServer(ctx context.Context, id string) (*models.Server, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var srv models.Server
	start := time.Now()
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, url, last_sync_at, last_reconcile_at, created_at, updated_at
		FROM servers WHERE id = ?`, id).
		Scan(&srv.ID, &srv.Name, &srv.URL, &srv.LastSyncAt, &srv.LastReconcileAt,
			&srv.CreatedAt, &srv.UpdatedAt)
	metrics.RecordDBQuery("select", "servers", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	return &srv, nil
}

// TouchServerSync stamps the last successful full sync for a server.
func (db *DB) TouchServerSync(ctx context.Context, id string, at time.Time) error {
	return db.touchServer(ctx, id, "last_sync_at", at)
}

// TouchServerReconcile stamps the last successful reconciliation for a server.
func (db *DB) TouchServerReconcile(ctx context.Context, id string, at time.Time) error {
	return db.touchServer(ctx, id, "last_reconcile_at", at)
}

func (db *DB) touchServer(ctx context.Context, id, column string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE servers SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, column)

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query, at, id)
	metrics.RecordDBQuery("update", "servers", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update server %s: %w", id, err)
	}
	return nil
}
