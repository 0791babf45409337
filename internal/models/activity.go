// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

import "time"

// Activity is the local row for a Jellyfin activity-log entry. The source
// assigns monotonically increasing integer IDs, which is what makes the
// watermark cursor in activity sync possible.
//
// UserID is nil for system-generated entries (the all-zero sentinel user)
// and for entries referencing users we have never seen.
type Activity struct {
	ID       int64
	ServerID string

	Name          string
	Type          string
	Severity      string
	ShortOverview *string
	Overview      *string

	UserID *string
	ItemID *string

	Date      time.Time
	CreatedAt time.Time
}
