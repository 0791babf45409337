// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

import "time"

// User is the local row for a Jellyfin user account.
type User struct {
	ID       string
	ServerID string
	Name     string

	IsAdministrator bool
	IsDisabled      bool

	LastLoginDate    *time.Time
	LastActivityDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
