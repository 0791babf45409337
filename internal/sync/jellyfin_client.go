// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
jellyfin_client.go - Jellyfin REST API Client

This file implements a REST API client for Jellyfin media server.
It provides methods to fetch library items, users, virtual folders and
activity-log entries, paginated where the API paginates.

API Reference: https://api.jellyfin.org/
*/

package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// itemFields lists the extra fields requested from the Items endpoint.
// ProviderIds and the structural fields drive re-identification; the rest
// feed the local item row.
const itemFields = "ProviderIds,Path,DateCreated,PremiereDate,Container,Genres,Tags,ImageBlurHashes"

// minimalSnapshotPageSize is the internal page size used when building the
// reconciliation snapshot. The snapshot projection is small, so pages can
// be much larger than regular item sync pages.
const minimalSnapshotPageSize = 1000

// JellyfinClientInterface defines the interface for Jellyfin API operations.
// Both JellyfinClient and JellyfinCircuitBreakerClient implement this
// interface, so the sync engine never knows whether it talks through the
// breaker.
type JellyfinClientInterface interface {
	Ping(ctx context.Context) error
	GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error)
	GetUsers(ctx context.Context) ([]models.JellyfinUser, error)
	GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error)
	GetItemsPage(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error)
	GetAllItemsMinimal(ctx context.Context) ([]models.JellyfinItem, error)
	GetActivities(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error)
}

// Ensure JellyfinClient implements JellyfinClientInterface
var _ JellyfinClientInterface = (*JellyfinClient)(nil)

// JellyfinClient provides access to the Jellyfin REST API
type JellyfinClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewJellyfinClient creates a new Jellyfin API client
//
// Parameters:
//   - baseURL: Jellyfin server URL (e.g., http://localhost:8096)
//   - apiKey: Jellyfin API key from Admin Dashboard > API Keys
//   - timeout: per-request HTTP timeout
func NewJellyfinClient(baseURL, apiKey string, timeout time.Duration) *JellyfinClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &JellyfinClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks server reachability via the unauthenticated ping endpoint.
func (c *JellyfinClient) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "/System/Ping")
	if err != nil {
		return fmt.Errorf("jellyfin ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jellyfin ping returned status %d", resp.StatusCode)
	}
	return nil
}

// GetSystemInfo retrieves server name, version and ID. The server ID seeds
// the local server row when no explicit server ID is configured.
func (c *JellyfinClient) GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error) {
	var info models.JellyfinSystemInfo
	if err := c.getJSON(ctx, "/System/Info", &info); err != nil {
		return nil, fmt.Errorf("jellyfin system info request failed: %w", err)
	}
	return &info, nil
}

// GetUsers retrieves all user accounts.
func (c *JellyfinClient) GetUsers(ctx context.Context) ([]models.JellyfinUser, error) {
	var users []models.JellyfinUser
	if err := c.getJSON(ctx, "/Users", &users); err != nil {
		return nil, fmt.Errorf("jellyfin users request failed: %w", err)
	}
	return users, nil
}

// GetLibraries retrieves the configured media libraries (virtual folders).
func (c *JellyfinClient) GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error) {
	var libs []models.JellyfinLibrary
	if err := c.getJSON(ctx, "/Library/VirtualFolders", &libs); err != nil {
		return nil, fmt.Errorf("jellyfin libraries request failed: %w", err)
	}
	return libs, nil
}

// GetItemsPage retrieves one page of items from a library. Results are
// sorted by SortName so that offset pagination is stable across pages.
func (c *JellyfinClient) GetItemsPage(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
	params := url.Values{}
	params.Set("ParentId", libraryID)
	params.Set("Recursive", "true")
	params.Set("IncludeItemTypes", "Movie,Series,Season,Episode")
	params.Set("StartIndex", strconv.Itoa(startIndex))
	params.Set("Limit", strconv.Itoa(limit))
	params.Set("Fields", itemFields)
	params.Set("SortBy", "SortName")
	params.Set("SortOrder", "Ascending")

	var page models.JellyfinItemsPage
	if err := c.getJSON(ctx, "/Items?"+params.Encode(), &page); err != nil {
		return nil, fmt.Errorf("jellyfin items request failed (library=%s start=%d): %w", libraryID, startIndex, err)
	}
	return &page, nil
}

// GetAllItemsMinimal builds the global reconciliation snapshot: every item
// the server currently knows, fetched with a minimal field set and no
// image data. Pagination is internal; callers get the complete snapshot or
// an error, never a partial one.
func (c *JellyfinClient) GetAllItemsMinimal(ctx context.Context) ([]models.JellyfinItem, error) {
	var all []models.JellyfinItem
	startIndex := 0

	for {
		params := url.Values{}
		params.Set("Recursive", "true")
		params.Set("IncludeItemTypes", "Movie,Series,Season,Episode")
		params.Set("StartIndex", strconv.Itoa(startIndex))
		params.Set("Limit", strconv.Itoa(minimalSnapshotPageSize))
		params.Set("Fields", "ProviderIds")
		params.Set("EnableImages", "false")
		params.Set("SortBy", "SortName")
		params.Set("SortOrder", "Ascending")

		var page models.JellyfinItemsPage
		if err := c.getJSON(ctx, "/Items?"+params.Encode(), &page); err != nil {
			return nil, fmt.Errorf("jellyfin snapshot request failed (start=%d): %w", startIndex, err)
		}

		all = append(all, page.Items...)
		startIndex += len(page.Items)

		if len(page.Items) == 0 || startIndex >= page.TotalRecordCount {
			break
		}
	}

	return all, nil
}

// GetActivities retrieves one page of activity-log entries, newest first.
func (c *JellyfinClient) GetActivities(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error) {
	params := url.Values{}
	params.Set("StartIndex", strconv.Itoa(startIndex))
	params.Set("Limit", strconv.Itoa(limit))

	var page models.JellyfinActivityPage
	if err := c.getJSON(ctx, "/System/ActivityLog/Entries?"+params.Encode(), &page); err != nil {
		return nil, fmt.Errorf("jellyfin activity request failed (start=%d): %w", startIndex, err)
	}
	return &page, nil
}

// getJSON performs a GET request and decodes the JSON response body.
func (c *JellyfinClient) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	start := time.Now()
	resp, err := c.doRequest(ctx, endpoint)
	metrics.RecordJellyfinRequest(metricEndpoint(endpoint), time.Since(start), err)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("status %d (failed to read body)", resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *JellyfinClient) doRequest(ctx context.Context, endpoint string) (*http.Response, error) {
	fullURL := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Client", "Mediatheca")
	req.Header.Set("X-Emby-Device-Name", "Mediatheca")
	req.Header.Set("X-Emby-Device-Id", "mediatheca")
	req.Header.Set("X-Emby-Client-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// metricEndpoint strips query parameters so metric labels stay low-cardinality.
func metricEndpoint(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
