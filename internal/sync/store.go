// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"time"

	"github.com/okatz/mediatheca/internal/database"
	"github.com/okatz/mediatheca/internal/models"
)

// Store is the persistence surface the sync engine depends on.
// *database.DB satisfies it; tests substitute an in-memory fake.
type Store interface {
	// Items
	UpsertItem(ctx context.Context, item *models.Item) error
	GetItemByID(ctx context.Context, id string) (*models.Item, error)
	ListItemsByLibrary(ctx context.Context, serverID, libraryID string, includeDeleted bool) ([]*models.Item, error)
	ListActiveItemIDsByLibrary(ctx context.Context, serverID, libraryID string) (map[string]struct{}, error)
	ListDeletedItems(ctx context.Context, serverID string) ([]*models.Item, error)
	SoftDeleteItems(ctx context.Context, ids []string, deletedAt time.Time) (int, error)
	HardDeleteItem(ctx context.Context, id string) error
	CountActiveItems(ctx context.Context, serverID string) (int, error)

	// Users and libraries
	UpsertUser(ctx context.Context, user *models.User) error
	ListUserIDs(ctx context.Context, serverID string) (map[string]struct{}, error)
	UpsertLibrary(ctx context.Context, lib *models.Library) error
	ListLibraries(ctx context.Context, serverID string) ([]*models.Library, error)

	// Servers
	UpsertServer(ctx context.Context, srv *models.Server) error
	GetServer(ctx context.Context, id string) (*models.Server, error)
	TouchServerSync(ctx context.Context, id string, at time.Time) error
	TouchServerReconcile(ctx context.Context, id string, at time.Time) error

	// Activities
	LatestActivityID(ctx context.Context, serverID string) (int64, bool, error)
	InsertActivities(ctx context.Context, activities []*models.Activity) (int, error)

	// Cross-references
	RewriteItemReferences(ctx context.Context, oldID, newID string) (int, error)
	DeleteRecommendationsForItems(ctx context.Context, itemIDs []string) (int, error)
	CountReferencesForItem(ctx context.Context, itemID string) (models.ItemReferences, error)
}

var _ Store = (*database.DB)(nil)
