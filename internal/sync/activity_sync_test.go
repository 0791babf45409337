// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/okatz/mediatheca/internal/models"
)

// activityPages serves a fixed newest-first entry list in pages of the
// requested size.
func activityPages(entries []models.JellyfinActivityEntry) func(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error) {
	return func(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error) {
		page := &models.JellyfinActivityPage{TotalRecordCount: len(entries), StartIndex: startIndex}
		if startIndex >= len(entries) {
			return page, nil
		}
		end := startIndex + limit
		if end > len(entries) {
			end = len(entries)
		}
		page.Items = entries[startIndex:end]
		return page, nil
	}
}

func activityEntry(id int64, userID string) models.JellyfinActivityEntry {
	return models.JellyfinActivityEntry{
		ID:       id,
		Name:     "SessionStarted",
		Type:     "SessionStarted",
		Severity: "Information",
		UserID:   userID,
		Date:     time.Date(2026, 8, 1, 0, 0, 0, int(id), time.UTC),
	}
}

func TestActivitySyncFirstRunIngestsEverything(t *testing.T) {
	store := newFakeStore()
	store.users["u1"] = &models.User{ID: "u1", ServerID: "srv"}

	client := &fakeClient{
		activitiesFn: activityPages([]models.JellyfinActivityEntry{
			activityEntry(30, "u1"),
			activityEntry(20, "u1"),
			activityEntry(10, "u1"),
		}),
	}

	tracker := NewTracker()
	s := NewActivitySyncer(client, store, "srv", 2, 10, 1, time.Millisecond)
	if err := s.Run(context.Background(), tracker); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.activities) != 3 {
		t.Fatalf("stored %d activities, want 3", len(store.activities))
	}
	result := tracker.Finalize()
	if result.Counts.Inserted != 3 {
		t.Errorf("Inserted = %d, want 3", result.Counts.Inserted)
	}
}

func TestActivitySyncStopsAtWatermark(t *testing.T) {
	store := newFakeStore()
	store.activities[20] = &models.Activity{ID: 20, ServerID: "srv"}

	client := &fakeClient{
		activitiesFn: activityPages([]models.JellyfinActivityEntry{
			activityEntry(40, ""),
			activityEntry(30, ""),
			activityEntry(20, ""),
			activityEntry(10, ""),
		}),
	}

	tracker := NewTracker()
	s := NewActivitySyncer(client, store, "srv", 2, 10, 1, time.Millisecond)
	if err := s.Run(context.Background(), tracker); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.activities) != 3 {
		t.Fatalf("stored %d activities, want 3 (watermark row plus two new)", len(store.activities))
	}
	if _, ok := store.activities[10]; ok {
		t.Error("entry below the watermark was ingested")
	}
	// Second page ends at the watermark; the third page must not be fetched.
	if client.activitiesCalls > 2 {
		t.Errorf("fetched %d pages, want at most 2", client.activitiesCalls)
	}
}

func TestActivitySyncSafetyBoundCapsScan(t *testing.T) {
	store := newFakeStore()
	// Watermark exists but the server's log no longer contains it.
	store.activities[1] = &models.Activity{ID: 1, ServerID: "srv"}

	var entries []models.JellyfinActivityEntry
	for id := int64(100); id > 1; id-- {
		entries = append(entries, activityEntry(id, ""))
	}

	client := &fakeClient{activitiesFn: activityPages(entries)}

	tracker := NewTracker()
	// pageSize 5, multiplier 2: at most 10 entries scanned.
	s := NewActivitySyncer(client, store, "srv", 5, 2, 1, time.Millisecond)
	if err := s.Run(context.Background(), tracker); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 10 scanned entries plus the pre-existing watermark row.
	if len(store.activities) != 11 {
		t.Fatalf("stored %d activities, want 11", len(store.activities))
	}
	if client.activitiesCalls != 2 {
		t.Errorf("fetched %d pages, want 2", client.activitiesCalls)
	}
}

func TestActivitySyncMapsSystemAndUnknownUsersToNil(t *testing.T) {
	store := newFakeStore()
	store.users["u1"] = &models.User{ID: "u1", ServerID: "srv"}

	client := &fakeClient{
		activitiesFn: activityPages([]models.JellyfinActivityEntry{
			activityEntry(3, "u1"),
			activityEntry(2, models.SystemUserID),
			activityEntry(1, "never-seen-user"),
		}),
	}

	s := NewActivitySyncer(client, store, "srv", 10, 10, 1, time.Millisecond)
	if err := s.Run(context.Background(), NewTracker()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := store.activities[3].UserID; got == nil || *got != "u1" {
		t.Errorf("known user reference = %v, want u1", got)
	}
	if store.activities[2].UserID != nil {
		t.Error("system sentinel user must map to a NULL user reference")
	}
	if store.activities[1].UserID != nil {
		t.Error("unknown user must map to a NULL user reference")
	}
}

func TestActivitySyncNoNewEntries(t *testing.T) {
	store := newFakeStore()
	store.activities[5] = &models.Activity{ID: 5, ServerID: "srv"}

	client := &fakeClient{
		activitiesFn: activityPages([]models.JellyfinActivityEntry{
			activityEntry(5, ""),
		}),
	}

	tracker := NewTracker()
	s := NewActivitySyncer(client, store, "srv", 10, 10, 1, time.Millisecond)
	if err := s.Run(context.Background(), tracker); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := tracker.Finalize().Counts.Inserted; got != 0 {
		t.Errorf("Inserted = %d, want 0", got)
	}
}
