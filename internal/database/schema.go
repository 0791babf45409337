// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package database

// schemaQueries returns the DDL executed at startup. Statements are
// idempotent so the list can run against an existing database.
func schemaQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			last_sync_at TIMESTAMP,
			last_reconcile_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			name TEXT NOT NULL,
			is_administrator BOOLEAN DEFAULT FALSE,
			is_disabled BOOLEAN DEFAULT FALSE,
			last_login_at TIMESTAMP,
			last_activity_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS libraries (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			name TEXT NOT NULL,
			collection_type TEXT,
			locations TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Items carry a soft-delete marker. A non-null deleted_at keeps the
		// row out of active queries while preserving it as a migration
		// candidate for re-identification.
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			library_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			etag TEXT,
			series_id TEXT,
			series_name TEXT,
			season_id TEXT,
			season_index INTEGER,
			episode_index INTEGER,
			production_year INTEGER,
			premiere_date TIMESTAMP,
			date_created TIMESTAMP,
			path TEXT,
			container TEXT,
			community_rating DOUBLE,
			official_rating TEXT,
			runtime_ticks BIGINT,
			provider_ids TEXT,
			genres TEXT,
			tags TEXT,
			primary_image_tag TEXT,
			primary_blur_hash TEXT,
			backdrop_image_tags TEXT,
			raw_data TEXT,
			deleted_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_items_library ON items (server_id, library_id, deleted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_items_series_name ON items (series_name)`,
		`CREATE INDEX IF NOT EXISTS idx_items_type ON items (type)`,

		`CREATE TABLE IF NOT EXISTS playback_sessions (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			played_ms BIGINT DEFAULT 0,
			completed BOOLEAN DEFAULT FALSE,
			device_name TEXT,
			client_name TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_item ON playback_sessions (item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON playback_sessions (user_id, started_at)`,

		`CREATE SEQUENCE IF NOT EXISTS hidden_recommendations_seq`,

		`CREATE TABLE IF NOT EXISTS hidden_recommendations (
			id BIGINT PRIMARY KEY DEFAULT nextval('hidden_recommendations_seq'),
			server_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			hidden_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, item_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_hidden_recs_item ON hidden_recommendations (item_id)`,

		// Activity IDs are assigned by the source per server, so the key is
		// composite. The (server_id, id DESC) ordering serves the watermark
		// lookup.
		`CREATE TABLE IF NOT EXISTS activities (
			id BIGINT NOT NULL,
			server_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT,
			severity TEXT,
			short_overview TEXT,
			overview TEXT,
			user_id TEXT,
			item_id TEXT,
			date TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (server_id, id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_date ON activities (server_id, date)`,
	}
}
