// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okatz/mediatheca/internal/models"
)

// libraryOf builds a paged Items responder for a library with n items.
func libraryOf(n int) func(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
	return func(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
		page := &models.JellyfinItemsPage{TotalRecordCount: n, StartIndex: startIndex}
		for i := startIndex; i < n && i < startIndex+limit; i++ {
			page.Items = append(page.Items, models.JellyfinItem{
				ID:   fmt.Sprintf("%s-item-%d", libraryID, i),
				Name: fmt.Sprintf("Item %d", i),
			})
		}
		return page, nil
	}
}

// collector is a concurrency-safe handle func recording item IDs.
type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(ctx context.Context, item *models.JellyfinItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, item.ID)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func TestSyncLibraryItemsPaginates(t *testing.T) {
	client := &fakeClient{itemsPageFn: libraryOf(25)}
	f := NewPagedFetcher(client, 10, 100, 2, 0, 1, time.Millisecond)

	tracker := NewTracker()
	c := &collector{}
	if err := f.SyncLibraryItems(context.Background(), "lib-1", tracker, c.handle); err != nil {
		t.Fatalf("SyncLibraryItems() error = %v", err)
	}
	if c.count() != 25 {
		t.Errorf("handled %d items, want 25", c.count())
	}
	if client.itemsPageCalls != 3 {
		t.Errorf("fetched %d pages, want 3", client.itemsPageCalls)
	}
	if got := tracker.Finalize().Counts.Fetched; got != 25 {
		t.Errorf("Fetched = %d, want 25", got)
	}
}

func TestSyncLibraryItemsEmptyLibrary(t *testing.T) {
	client := &fakeClient{itemsPageFn: libraryOf(0)}
	f := NewPagedFetcher(client, 10, 100, 2, 0, 1, time.Millisecond)

	c := &collector{}
	if err := f.SyncLibraryItems(context.Background(), "lib-1", NewTracker(), c.handle); err != nil {
		t.Fatalf("SyncLibraryItems() error = %v", err)
	}
	if c.count() != 0 {
		t.Errorf("handled %d items, want 0", c.count())
	}
	if client.itemsPageCalls != 1 {
		t.Errorf("fetched %d pages, want 1", client.itemsPageCalls)
	}
}

func TestSyncLibraryItemsMaxPageGuard(t *testing.T) {
	// A misbehaving server that always returns a full page with an
	// ever-growing total.
	client := &fakeClient{
		itemsPageFn: func(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
			page := &models.JellyfinItemsPage{TotalRecordCount: startIndex + limit*2}
			for i := 0; i < limit; i++ {
				page.Items = append(page.Items, models.JellyfinItem{ID: fmt.Sprintf("x-%d-%d", startIndex, i)})
			}
			return page, nil
		},
	}

	f := NewPagedFetcher(client, 10, 3, 2, 0, 1, time.Millisecond)
	c := &collector{}
	err := f.SyncLibraryItems(context.Background(), "lib-1", NewTracker(), c.handle)
	if err == nil {
		t.Fatal("expected the max-page guard to abort the fetch")
	}
	if client.itemsPageCalls != 3 {
		t.Errorf("fetched %d pages before guard, want 3", client.itemsPageCalls)
	}
	// Processed pages stay processed; only the scan stops.
	if c.count() != 30 {
		t.Errorf("handled %d items before guard, want 30", c.count())
	}
}

func TestSyncLibraryItemsFailsAfterRetries(t *testing.T) {
	client := &fakeClient{
		itemsPageFn: func(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
			return nil, errors.New("boom")
		},
	}

	f := NewPagedFetcher(client, 10, 100, 2, 0, 3, time.Millisecond)
	err := f.SyncLibraryItems(context.Background(), "lib-1", NewTracker(), (&collector{}).handle)
	if err == nil {
		t.Fatal("expected an error after exhausted retries")
	}
	if client.itemsPageCalls != 3 {
		t.Errorf("attempted %d fetches, want 3", client.itemsPageCalls)
	}
}

func TestSyncLibraryItemsDrainsPageBeforeNextFetch(t *testing.T) {
	var inFlight, violations atomic.Int32

	pages := libraryOf(30)
	client := &fakeClient{
		itemsPageFn: func(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
			// No handler may still be running when the next page is asked for.
			if inFlight.Load() != 0 {
				violations.Add(1)
			}
			return pages(ctx, libraryID, startIndex, limit)
		},
	}
	f := NewPagedFetcher(client, 10, 100, 4, 0, 1, time.Millisecond)

	err := f.SyncLibraryItems(context.Background(), "lib-1", NewTracker(), func(ctx context.Context, item *models.JellyfinItem) {
		inFlight.Add(1)
		defer inFlight.Add(-1)
		time.Sleep(time.Millisecond)
	})
	if err != nil {
		t.Fatalf("SyncLibraryItems() error = %v", err)
	}
	if v := violations.Load(); v != 0 {
		t.Errorf("%d page fetches overlapped with running handlers", v)
	}
	if n := inFlight.Load(); n != 0 {
		t.Errorf("%d handlers still in flight after the scan", n)
	}
}

func TestSyncLibraryItemsBoundsWorkerFanOut(t *testing.T) {
	var current, peak atomic.Int32

	client := &fakeClient{itemsPageFn: libraryOf(20)}
	f := NewPagedFetcher(client, 20, 100, 3, 0, 1, time.Millisecond)

	err := f.SyncLibraryItems(context.Background(), "lib-1", NewTracker(), func(ctx context.Context, item *models.JellyfinItem) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		current.Add(-1)
	})
	if err != nil {
		t.Fatalf("SyncLibraryItems() error = %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrent handlers = %d, want at most 3", p)
	}
}
