// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

// Package sync implements the Jellyfin synchronization pipeline: paginated
// item fetching, change-classified upserts, incremental activity ingestion
// and reconciliation with re-identification of items whose Jellyfin IDs
// changed across a delete/re-add cycle.
//
// The Manager orchestrates runs; JellyfinClient (optionally wrapped in a
// circuit breaker) talks to the server; the Store interface abstracts the
// DuckDB layer so the engine can be tested against an in-memory fake.
package sync
