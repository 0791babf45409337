// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
paged_fetcher.go - Paginated item retrieval

Streams a library through Jellyfin's offset-paginated Items endpoint.
Pages are requested strictly one at a time, and every element of a page
is handed to a bounded worker pool and fully processed before the next
page is requested, so memory use is bounded by one page regardless of
library size. A shared rate limiter enforces the inter-page delay and a
max-page guard stops runaway pagination when a server keeps returning
full pages past any plausible library size.
*/

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// PagedFetcher retrieves library items page by page.
type PagedFetcher struct {
	client   JellyfinClientInterface
	pageSize int
	maxPages int
	workers  int
	limiter  *rate.Limiter

	retryAttempts int
	retryDelay    time.Duration
}

// NewPagedFetcher builds a fetcher. pageDelay is the minimum spacing
// between page requests; workers bounds the per-page element fan-out.
func NewPagedFetcher(client JellyfinClientInterface, pageSize, maxPages, workers int, pageDelay time.Duration, retryAttempts int, retryDelay time.Duration) *PagedFetcher {
	if workers <= 0 {
		workers = 4
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(pageDelay), 1)
	}

	return &PagedFetcher{
		client:        client,
		pageSize:      pageSize,
		maxPages:      maxPages,
		workers:       workers,
		limiter:       limiter,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

// SyncLibraryItems streams one library page by page, calling handle for
// every item through the worker pool. Each page is fully drained before
// the next one is requested. handle must be safe for concurrent use.
//
// A mid-scan failure or a tripped max-page guard returns an error, but
// items of pages already processed stay processed; the next full run
// picks up whatever was missed.
func (f *PagedFetcher) SyncLibraryItems(ctx context.Context, libraryID string, tracker *Tracker, handle func(ctx context.Context, item *models.JellyfinItem)) error {
	startIndex := 0
	pages := 0

	for {
		if pages >= f.maxPages {
			return fmt.Errorf("library %s exceeded max pages (%d), aborting fetch", libraryID, f.maxPages)
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		var page *models.JellyfinItemsPage
		err := retryWithBackoff(ctx, f.retryAttempts, f.retryDelay, func() error {
			var fetchErr error
			page, fetchErr = f.client.GetItemsPage(ctx, libraryID, startIndex, f.pageSize)
			return fetchErr
		})
		tracker.AddAPIRequest()
		if err != nil {
			return fmt.Errorf("failed to fetch page at index %d for library %s: %w", startIndex, libraryID, err)
		}

		pages++
		metrics.SyncPagesFetched.Inc()
		tracker.AddFetched(len(page.Items))

		f.processPage(ctx, page.Items, handle)
		startIndex += len(page.Items)

		logging.Debug().
			Str("library_id", libraryID).
			Int("page", pages).
			Int("page_items", len(page.Items)).
			Int("total", page.TotalRecordCount).
			Msg("Processed item page")

		// A short or empty page ends the scan, as does reaching the
		// server-reported total.
		if len(page.Items) < f.pageSize || startIndex >= page.TotalRecordCount {
			return nil
		}
	}
}

// processPage fans one page's elements across the worker pool and waits
// for all of them.
func (f *PagedFetcher) processPage(ctx context.Context, items []models.JellyfinItem, handle func(ctx context.Context, item *models.JellyfinItem)) {
	sem := make(chan struct{}, f.workers)
	var wg sync.WaitGroup

	for i := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(item *models.JellyfinItem) {
			defer wg.Done()
			defer func() { <-sem }()
			handle(ctx, item)
		}(&items[i])
	}

	wg.Wait()
}
