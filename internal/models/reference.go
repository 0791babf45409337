// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

import "time"

// Server is a configured Jellyfin server instance. Item, user and library
// rows hang off a server so that a multi-server deployment keeps its
// namespaces apart.
type Server struct {
	ID   string
	Name string
	URL  string

	LastSyncAt      *time.Time
	LastReconcileAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemReferences summarizes how many derived rows point at an item.
// Playback sessions and hidden recommendations live in their own tables
// keyed by item ID; they are rewritten to the successor row when an item
// is migrated, which is why the counts matter to the maintenance API.
type ItemReferences struct {
	Sessions        int `json:"sessions"`
	Recommendations int `json:"recommendations"`
}
