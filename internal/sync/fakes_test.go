// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okatz/mediatheca/internal/database"
	"github.com/okatz/mediatheca/internal/models"
)

// fakeClient implements JellyfinClientInterface with per-method hooks.
// Unset hooks return empty results.
type fakeClient struct {
	pingFn       func(ctx context.Context) error
	systemInfoFn func(ctx context.Context) (*models.JellyfinSystemInfo, error)
	usersFn      func(ctx context.Context) ([]models.JellyfinUser, error)
	librariesFn  func(ctx context.Context) ([]models.JellyfinLibrary, error)
	itemsPageFn  func(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error)
	allItemsFn   func(ctx context.Context) ([]models.JellyfinItem, error)
	activitiesFn func(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error)

	mu              sync.Mutex
	itemsPageCalls  int
	activitiesCalls int
}

func (f *fakeClient) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeClient) GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error) {
	if f.systemInfoFn != nil {
		return f.systemInfoFn(ctx)
	}
	return &models.JellyfinSystemInfo{ID: "test-server", ServerName: "test"}, nil
}

func (f *fakeClient) GetUsers(ctx context.Context) ([]models.JellyfinUser, error) {
	if f.usersFn != nil {
		return f.usersFn(ctx)
	}
	return nil, nil
}

func (f *fakeClient) GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error) {
	if f.librariesFn != nil {
		return f.librariesFn(ctx)
	}
	return nil, nil
}

func (f *fakeClient) GetItemsPage(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
	f.mu.Lock()
	f.itemsPageCalls++
	f.mu.Unlock()
	if f.itemsPageFn != nil {
		return f.itemsPageFn(ctx, libraryID, startIndex, limit)
	}
	return &models.JellyfinItemsPage{}, nil
}

func (f *fakeClient) GetAllItemsMinimal(ctx context.Context) ([]models.JellyfinItem, error) {
	if f.allItemsFn != nil {
		return f.allItemsFn(ctx)
	}
	return nil, nil
}

func (f *fakeClient) GetActivities(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error) {
	f.mu.Lock()
	f.activitiesCalls++
	f.mu.Unlock()
	if f.activitiesFn != nil {
		return f.activitiesFn(ctx, startIndex, limit)
	}
	return &models.JellyfinActivityPage{}, nil
}

var _ JellyfinClientInterface = (*fakeClient)(nil)

// fakeStore is an in-memory Store. Mutation order is recorded in ops so
// tests can assert sequencing, reference rewrites before deletions in
// particular.
type fakeStore struct {
	mu sync.Mutex

	items      map[string]*models.Item
	users      map[string]*models.User
	libraries  map[string]*models.Library
	servers    map[string]*models.Server
	activities map[int64]*models.Activity

	// references maps item ID to reference count; RewriteItemReferences
	// moves counts between IDs.
	references      map[string]int
	recommendations map[string][]string // itemID -> userIDs

	ops []string

	upsertItemErr error
	softDeleteErr error
	rewriteErr    error
	hardDeleteErr error
	countErr      error
	listLibsErr   error
	latestActErr  error
	insertActErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:           make(map[string]*models.Item),
		users:           make(map[string]*models.User),
		libraries:       make(map[string]*models.Library),
		servers:         make(map[string]*models.Server),
		activities:      make(map[int64]*models.Activity),
		references:      make(map[string]int),
		recommendations: make(map[string][]string),
	}
}

func (s *fakeStore) record(op string) {
	s.ops = append(s.ops, op)
}

func (s *fakeStore) UpsertItem(ctx context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertItemErr != nil {
		return s.upsertItemErr
	}
	copied := *item
	copied.DeletedAt = nil
	s.items[item.ID] = &copied
	s.record("upsert:" + item.ID)
	return nil
}

func (s *fakeStore) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (s *fakeStore) ListItemsByLibrary(ctx context.Context, serverID, libraryID string, includeDeleted bool) ([]*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Item
	for _, item := range s.items {
		if item.ServerID != serverID || item.LibraryID != libraryID {
			continue
		}
		if !includeDeleted && item.IsDeleted() {
			continue
		}
		copied := *item
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListActiveItemIDsByLibrary(ctx context.Context, serverID, libraryID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for _, item := range s.items {
		if item.ServerID == serverID && item.LibraryID == libraryID && !item.IsDeleted() {
			out[item.ID] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeStore) ListDeletedItems(ctx context.Context, serverID string) ([]*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Item
	for _, item := range s.items {
		if item.ServerID == serverID && item.IsDeleted() {
			copied := *item
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SoftDeleteItems(ctx context.Context, ids []string, deletedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.softDeleteErr != nil {
		return 0, s.softDeleteErr
	}
	n := 0
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok || item.IsDeleted() {
			continue
		}
		at := deletedAt
		item.DeletedAt = &at
		n++
		s.record("softdelete:" + id)
	}
	return n, nil
}

func (s *fakeStore) HardDeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hardDeleteErr != nil {
		return s.hardDeleteErr
	}
	delete(s.items, id)
	s.record("harddelete:" + id)
	return nil
}

func (s *fakeStore) CountActiveItems(ctx context.Context, serverID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, item := range s.items {
		if item.ServerID == serverID && !item.IsDeleted() {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UpsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *fakeStore) ListUserIDs(ctx context.Context, serverID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for _, u := range s.users {
		if u.ServerID == serverID {
			out[u.ID] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertLibrary(ctx context.Context, lib *models.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lib
	s.libraries[lib.ID] = &copied
	return nil
}

func (s *fakeStore) ListLibraries(ctx context.Context, serverID string) ([]*models.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listLibsErr != nil {
		return nil, s.listLibsErr
	}
	var out []*models.Library
	for _, lib := range s.libraries {
		if lib.ServerID == serverID {
			copied := *lib
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) UpsertServer(ctx context.Context, srv *models.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *srv
	s.servers[srv.ID] = &copied
	return nil
}

func (s *fakeStore) GetServer(ctx context.Context, id string) (*models.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *srv
	return &copied, nil
}

func (s *fakeStore) TouchServerSync(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *fakeStore) TouchServerReconcile(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *fakeStore) LatestActivityID(ctx context.Context, serverID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestActErr != nil {
		return 0, false, s.latestActErr
	}
	var max int64
	found := false
	for id, a := range s.activities {
		if a.ServerID != serverID {
			continue
		}
		if !found || id > max {
			max = id
			found = true
		}
	}
	return max, found, nil
}

func (s *fakeStore) InsertActivities(ctx context.Context, activities []*models.Activity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertActErr != nil {
		return 0, s.insertActErr
	}
	n := 0
	for _, a := range activities {
		if _, exists := s.activities[a.ID]; exists {
			continue
		}
		copied := *a
		s.activities[a.ID] = &copied
		n++
	}
	return n, nil
}

func (s *fakeStore) RewriteItemReferences(ctx context.Context, oldID, newID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rewriteErr != nil {
		return 0, s.rewriteErr
	}
	n := s.references[oldID]
	if n > 0 {
		s.references[newID] += n
		delete(s.references, oldID)
	}
	s.record("rewrite:" + oldID + "->" + newID)
	return n, nil
}

func (s *fakeStore) DeleteRecommendationsForItems(ctx context.Context, itemIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range itemIDs {
		n += len(s.recommendations[id])
		delete(s.recommendations, id)
		s.record("cascade:" + id)
	}
	return n, nil
}

func (s *fakeStore) CountReferencesForItem(ctx context.Context, itemID string) (models.ItemReferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ItemReferences{
		Sessions:        s.references[itemID],
		Recommendations: len(s.recommendations[itemID]),
	}, nil
}

var _ Store = (*fakeStore)(nil)

func strPtr(s string) *string        { return &s }
func intPtr(n int) *int              { return &n }
func int64Ptr(n int64) *int64        { return &n }
func floatPtr(f float64) *float64    { return &f }
func timePtr(t time.Time) *time.Time { return &t }
