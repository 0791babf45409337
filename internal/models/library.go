// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

import "time"

// Library is the local row for a Jellyfin media library (virtual folder).
type Library struct {
	ID             string
	ServerID       string
	Name           string
	CollectionType string
	Locations      []string

	CreatedAt time.Time
	UpdatedAt time.Time
}
