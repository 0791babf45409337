// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
tracker.go - Run-scoped sync accounting

A Tracker collects per-record outcomes, stage errors and timing for one
sync or reconciliation run and folds them into a SyncResult. Record-level
failures are data: they increment the error count and carry a message, but
they never abort the run. Only whole-run failures (unreachable source,
guard aborts) surface as Go errors from the operation itself.
*/

package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/okatz/mediatheca/internal/models"
)

// maxTrackedErrors caps the error messages kept per run so a pathological
// run cannot grow the result without bound. The error count keeps counting
// past the cap.
const maxTrackedErrors = 100

// Tracker accumulates counters for a single run. Safe for concurrent use
// by fetch workers.
type Tracker struct {
	mu      sync.Mutex
	started time.Time

	counts models.SyncCounts
	errs   []string

	apiRequests  int
	dbOperations int
}

// NewTracker starts accounting for a run.
func NewTracker() *Tracker {
	return &Tracker{started: time.Now()}
}

func (t *Tracker) AddFetched(n int) { t.add(func(c *models.SyncCounts) { c.Fetched += n }) }
func (t *Tracker) AddInserted()     { t.add(func(c *models.SyncCounts) { c.Inserted++ }) }
func (t *Tracker) AddUpdated()      { t.add(func(c *models.SyncCounts) { c.Updated++ }) }
func (t *Tracker) AddUnchanged()    { t.add(func(c *models.SyncCounts) { c.Unchanged++ }) }

func (t *Tracker) AddSoftDeleted(n int) { t.add(func(c *models.SyncCounts) { c.SoftDeleted += n }) }
func (t *Tracker) AddMigrated()         { t.add(func(c *models.SyncCounts) { c.Migrated++ }) }
func (t *Tracker) AddMigratedRefs(n int) {
	t.add(func(c *models.SyncCounts) { c.MigratedRefs += n })
}

func (t *Tracker) AddAPIRequest()  { t.mu.Lock(); t.apiRequests++; t.mu.Unlock() }
func (t *Tracker) AddDBOperation() { t.mu.Lock(); t.dbOperations++; t.mu.Unlock() }

// AddError records a record- or stage-level failure without aborting the run.
func (t *Tracker) AddError(stage string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts.Errors++
	if len(t.errs) < maxTrackedErrors {
		t.errs = append(t.errs, fmt.Sprintf("%s: %v", stage, err))
	}
}

// ErrorCount returns the number of failures recorded so far.
func (t *Tracker) ErrorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts.Errors
}

func (t *Tracker) add(fn func(*models.SyncCounts)) {
	t.mu.Lock()
	fn(&t.counts)
	t.mu.Unlock()
}

// Finalize closes the run and derives the status: error when nothing useful
// happened and there were failures, partial when work and failures mixed,
// success otherwise.
func (t *Tracker) Finalize() *models.SyncResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := &models.SyncResult{
		Counts: t.counts,
		Metrics: models.SyncMetrics{
			ElapsedMs:    time.Since(t.started).Milliseconds(),
			APIRequests:  t.apiRequests,
			DBOperations: t.dbOperations,
		},
		Errors: t.errs,
	}

	switch {
	case t.counts.Errors == 0:
		result.Status = models.SyncStatusSuccess
	case t.counts.Fetched == 0 && t.counts.Inserted == 0 && t.counts.Updated == 0 &&
		t.counts.Unchanged == 0 && t.counts.SoftDeleted == 0 && t.counts.Migrated == 0:
		result.Status = models.SyncStatusError
	default:
		result.Status = models.SyncStatusPartial
	}

	return result
}

// Fail closes the run as a hard failure, recording the error first.
func (t *Tracker) Fail(stage string, err error) *models.SyncResult {
	t.AddError(stage, err)
	result := t.Finalize()
	result.Status = models.SyncStatusError
	return result
}
