// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

// Package models defines the data structures shared across Mediatheca:
// Jellyfin API response types (jellyfin.go), local database rows
// (item.go, user.go, library.go, activity.go, reference.go), and the
// sync run result types (syncresult.go).
//
// Remote DTOs mirror the Jellyfin API field names (PascalCase JSON keys);
// local rows use the column layout of internal/database. The mapping between
// the two lives in internal/sync, not here.
package models
