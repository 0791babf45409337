// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// UpsertUser inserts or updates a user row keyed on the Jellyfin user ID.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO users (
		id, server_id, name, is_administrator, is_disabled,
		last_login_at, last_activity_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO UPDATE SET
		server_id = EXCLUDED.server_id,
		name = EXCLUDED.name,
		is_administrator = EXCLUDED.is_administrator,
		is_disabled = EXCLUDED.is_disabled,
		last_login_at = EXCLUDED.last_login_at,
		last_activity_at = EXCLUDED.last_activity_at,
		updated_at = CURRENT_TIMESTAMP`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query,
		user.ID, user.ServerID, user.Name, user.IsAdministrator, user.IsDisabled,
		user.LastLoginDate, user.LastActivityDate,
	)
	metrics.RecordDBQuery("upsert", "users", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

// ListUserIDs returns the known user IDs for a server as a set. Activity
// ingestion uses this to decide whether a user reference can be kept.
func (db *DB) ListUserIDs(ctx context.Context, serverID string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM users WHERE server_id = ?`, serverID)
	metrics.RecordDBQuery("select", "users", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list user IDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListUsers returns all user rows for a server.
func (db *DB) ListUsers(ctx context.Context, serverID string) ([]*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_id, name, is_administrator, is_disabled,
			last_login_at, last_activity_at, created_at, updated_at
		FROM users WHERE server_id = ? ORDER BY name`, serverID)
	metrics.RecordDBQuery("select", "users", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.ServerID, &u.Name, &u.IsAdministrator, &u.IsDisabled,
			&u.LastLoginDate, &u.LastActivityDate, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
