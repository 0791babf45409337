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

// LatestActivityID returns the highest stored activity-log entry ID for a
// server, the watermark cursor for incremental activity sync. The boolean
// is false when no activities have been stored yet.
func (db *DB) LatestActivityID(ctx context.Context, serverID string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// MAX over an empty table yields NULL, hence the NullInt64 scan.
	var id sql.NullInt64
	start := time.Now()
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(id) FROM activities WHERE server_id = ?`, serverID).Scan(&id)
	metrics.RecordDBQuery("select", "activities", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get latest activity ID: %w", err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return id.Int64, true, nil
}

// InsertActivities stores a batch of activity entries, skipping any IDs
// already present. Returns the number of rows inserted.
func (db *DB) InsertActivities(ctx context.Context, activities []*models.Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO activities (
		id, server_id, name, type, severity, short_overview, overview,
		user_id, item_id, date, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (server_id, id) DO NOTHING`

	inserted := 0
	for _, a := range activities {
		start := time.Now()
		res, err := db.conn.ExecContext(ctx, query,
			a.ID, a.ServerID, a.Name, a.Type, a.Severity,
			a.ShortOverview, a.Overview, a.UserID, a.ItemID, a.Date)
		metrics.RecordDBQuery("insert", "activities", time.Since(start), err)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert activity %d: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListRecentActivities returns the newest stored activities for a server.
func (db *DB) ListRecentActivities(ctx context.Context, serverID string, limit int) ([]*models.Activity, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_id, name, type, severity, short_overview, overview,
			user_id, item_id, date, created_at
		FROM activities WHERE server_id = ? ORDER BY id DESC LIMIT ?`,
		serverID, limit)
	metrics.RecordDBQuery("select", "activities", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []*models.Activity
	for rows.Next() {
		var (
			a        models.Activity
			actType  sql.NullString
			severity sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ServerID, &a.Name, &actType, &severity,
			&a.ShortOverview, &a.Overview, &a.UserID, &a.ItemID, &a.Date, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		a.Type = actType.String
		a.Severity = severity.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
