// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
crud_items.go - Item persistence

Items are the central table of the sync pipeline. Writes happen through
UpsertItem (insert-or-update keyed on the Jellyfin ID) and the
reconciliation helpers SoftDeleteItems / HardDeleteItem. Collection
fields (provider IDs, genres, tags, backdrop tags) are stored as JSON
text columns.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// softDeleteBatchSize caps the number of IDs per soft-delete statement so
// very large reconciliations do not build unbounded IN clauses.
const softDeleteBatchSize = 100

// UpsertItem inserts a new item row or updates an existing one keyed on the
// Jellyfin item ID. An update always clears deleted_at so that a re-appearing
// item is resurrected.
func (db *DB) UpsertItem(ctx context.Context, item *models.Item) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	providerIDs, err := marshalJSONField(item.ProviderIDs)
	if err != nil {
		return fmt.Errorf("failed to encode provider IDs for item %s: %w", item.ID, err)
	}
	genres, err := marshalJSONField(item.Genres)
	if err != nil {
		return fmt.Errorf("failed to encode genres for item %s: %w", item.ID, err)
	}
	tags, err := marshalJSONField(item.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for item %s: %w", item.ID, err)
	}
	backdrops, err := marshalJSONField(item.BackdropImageTags)
	if err != nil {
		return fmt.Errorf("failed to encode backdrop tags for item %s: %w", item.ID, err)
	}

	query := `INSERT INTO items (
		id, server_id, library_id, name, type, etag,
		series_id, series_name, season_id, season_index, episode_index,
		production_year, premiere_date, date_created, path, container,
		community_rating, official_rating, runtime_ticks,
		provider_ids, genres, tags,
		primary_image_tag, primary_blur_hash, backdrop_image_tags,
		raw_data, deleted_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO UPDATE SET
		server_id = EXCLUDED.server_id,
		library_id = EXCLUDED.library_id,
		name = EXCLUDED.name,
		type = EXCLUDED.type,
		etag = EXCLUDED.etag,
		series_id = EXCLUDED.series_id,
		series_name = EXCLUDED.series_name,
		season_id = EXCLUDED.season_id,
		season_index = EXCLUDED.season_index,
		episode_index = EXCLUDED.episode_index,
		production_year = EXCLUDED.production_year,
		premiere_date = EXCLUDED.premiere_date,
		date_created = EXCLUDED.date_created,
		path = EXCLUDED.path,
		container = EXCLUDED.container,
		community_rating = EXCLUDED.community_rating,
		official_rating = EXCLUDED.official_rating,
		runtime_ticks = EXCLUDED.runtime_ticks,
		provider_ids = EXCLUDED.provider_ids,
		genres = EXCLUDED.genres,
		tags = EXCLUDED.tags,
		primary_image_tag = EXCLUDED.primary_image_tag,
		primary_blur_hash = EXCLUDED.primary_blur_hash,
		backdrop_image_tags = EXCLUDED.backdrop_image_tags,
		raw_data = EXCLUDED.raw_data,
		deleted_at = NULL,
		updated_at = CURRENT_TIMESTAMP`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, query,
		item.ID, item.ServerID, item.LibraryID, item.Name, item.Type, item.Etag,
		item.SeriesID, item.SeriesName, item.SeasonID, item.SeasonIndex, item.EpisodeIndex,
		item.ProductionYear, item.PremiereDate, item.DateCreated, item.Path, item.Container,
		item.CommunityRating, item.OfficialRating, item.RuntimeTicks,
		providerIDs, genres, tags,
		item.PrimaryImageTag, item.PrimaryBlurHash, backdrops,
		rawDataString(item.RawData),
	)
	metrics.RecordDBQuery("upsert", "items", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
	}
	return nil
}

// GetItemByID fetches a single item row, including soft-deleted rows.
// Returns ErrNotFound when no row matches.
func (db *DB) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx, itemSelectColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	metrics.RecordDBQuery("select", "items", time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return item, nil
}

// ListItemsByLibrary returns all item rows for a library. Soft-deleted rows
// are excluded unless includeDeleted is set.
func (db *DB) ListItemsByLibrary(ctx context.Context, serverID, libraryID string, includeDeleted bool) ([]*models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := itemSelectColumns + ` FROM items WHERE server_id = ? AND library_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, serverID, libraryID)
	metrics.RecordDBQuery("select", "items", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for library %s: %w", libraryID, err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListActiveItemIDsByLibrary returns the IDs of all non-deleted items in a
// library as a set, the shape the reconciliation diff consumes.
func (db *DB) ListActiveItemIDsByLibrary(ctx context.Context, serverID, libraryID string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM items WHERE server_id = ? AND library_id = ? AND deleted_at IS NULL`,
		serverID, libraryID)
	metrics.RecordDBQuery("select", "items", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list active item IDs for library %s: %w", libraryID, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item ID: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListDeletedItems returns all soft-deleted rows for a server. These are the
// migration candidates during re-identification.
func (db *DB) ListDeletedItems(ctx context.Context, serverID string) ([]*models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		itemSelectColumns+` FROM items WHERE server_id = ? AND deleted_at IS NOT NULL`, serverID)
	metrics.RecordDBQuery("select", "items", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// SoftDeleteItems marks the given item IDs deleted in batches. Returns the
// number of rows actually updated; already-deleted rows are not re-stamped.
func (db *DB) SoftDeleteItems(ctx context.Context, ids []string, deletedAt time.Time) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += softDeleteBatchSize {
		end := start + softDeleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := db.softDeleteBatch(ctx, ids[start:end], deletedAt)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (db *DB) softDeleteBatch(ctx context.Context, ids []string, deletedAt time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, deletedAt)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE items SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id IN (%s) AND deleted_at IS NULL`,
		placeholders)

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery("update", "items", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete items: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// HardDeleteItem removes an item row permanently. Only called at the end of
// a migration, after all references have been rewritten to the successor.
func (db *DB) HardDeleteItem(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	metrics.RecordDBQuery("delete", "items", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

// CountActiveItems returns the number of non-deleted items for a server.
func (db *DB) CountActiveItems(ctx context.Context, serverID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	start := time.Now()
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE server_id = ? AND deleted_at IS NULL`, serverID).Scan(&count)
	metrics.RecordDBQuery("select", "items", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count active items: %w", err)
	}
	return count, nil
}

const itemSelectColumns = `SELECT
	id, server_id, library_id, name, type, etag,
	series_id, series_name, season_id, season_index, episode_index,
	production_year, premiere_date, date_created, path, container,
	community_rating, official_rating, runtime_ticks,
	provider_ids, genres, tags,
	primary_image_tag, primary_blur_hash, backdrop_image_tags,
	raw_data, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item        models.Item
		providerIDs sql.NullString
		genres      sql.NullString
		tags        sql.NullString
		backdrops   sql.NullString
		rawData     sql.NullString
	)

	err := row.Scan(
		&item.ID, &item.ServerID, &item.LibraryID, &item.Name, &item.Type, &item.Etag,
		&item.SeriesID, &item.SeriesName, &item.SeasonID, &item.SeasonIndex, &item.EpisodeIndex,
		&item.ProductionYear, &item.PremiereDate, &item.DateCreated, &item.Path, &item.Container,
		&item.CommunityRating, &item.OfficialRating, &item.RuntimeTicks,
		&providerIDs, &genres, &tags,
		&item.PrimaryImageTag, &item.PrimaryBlurHash, &backdrops,
		&rawData, &item.DeletedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONField(providerIDs, &item.ProviderIDs); err != nil {
		return nil, fmt.Errorf("failed to decode provider IDs for item %s: %w", item.ID, err)
	}
	if err := unmarshalJSONField(genres, &item.Genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres for item %s: %w", item.ID, err)
	}
	if err := unmarshalJSONField(tags, &item.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for item %s: %w", item.ID, err)
	}
	if err := unmarshalJSONField(backdrops, &item.BackdropImageTags); err != nil {
		return nil, fmt.Errorf("failed to decode backdrop tags for item %s: %w", item.ID, err)
	}
	if rawData.Valid {
		item.RawData = []byte(rawData.String)
	}

	return &item, nil
}

func collectItems(rows *sql.Rows) ([]*models.Item, error) {
	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// marshalJSONField encodes a collection column, mapping empty collections to
// SQL NULL.
func marshalJSONField(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSONField(col sql.NullString, dest interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}

func rawDataString(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
