// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

// SyncStatus classifies the outcome of a sync or reconciliation run.
type SyncStatus string

const (
	// SyncStatusSuccess means the run completed with no recorded errors.
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusPartial means the run completed but some records or stages
	// failed; the counts reflect what did go through.
	SyncStatusPartial SyncStatus = "partial"
	// SyncStatusError means the run could not produce useful work at all,
	// for example when the source was unreachable.
	SyncStatusError SyncStatus = "error"
)

// SyncCounts aggregates per-record outcomes across a run.
type SyncCounts struct {
	Fetched      int `json:"fetched"`
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Unchanged    int `json:"unchanged"`
	SoftDeleted  int `json:"soft_deleted"`
	Migrated     int `json:"migrated"`
	MigratedRefs int `json:"migrated_refs"`
	Errors       int `json:"errors"`
}

// SyncMetrics carries run-level timing and volume figures.
type SyncMetrics struct {
	ElapsedMs    int64 `json:"elapsed_ms"`
	APIRequests  int   `json:"api_requests"`
	DBOperations int   `json:"db_operations"`
}

// SyncResult is the summary returned by every sync operation. Failures of
// individual records are accumulated into Errors rather than aborting the
// run; only whole-run failures surface as a Go error from the caller.
type SyncResult struct {
	Status  SyncStatus  `json:"status"`
	Counts  SyncCounts  `json:"counts"`
	Metrics SyncMetrics `json:"metrics"`
	Errors  []string    `json:"errors,omitempty"`
}
