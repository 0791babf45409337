// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/models"
)

// retryWithBackoff executes a function with exponential backoff on failure.
// The context is used for cancellation during backoff waits. If the context
// is canceled during a wait, the function returns immediately with the
// context error.
func retryWithBackoff(ctx context.Context, attempts int, initialDelay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := initialDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil {
			return nil
		}

		if attempt < attempts-1 {
			logging.Warn().Err(err).Int("attempt", attempt+1).Int("max_attempts", attempts).Dur("delay", delay).Msg("Retry attempt")
			// Cancellable wait instead of time.Sleep
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("max retry attempts reached: %w", err)
}

// stringToPtr converts a non-empty string to a pointer, returns nil for empty strings
func stringToPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// mapJellyfinItem converts an API item DTO into the local row shape.
func mapJellyfinItem(serverID, libraryID string, dto *models.JellyfinItem) *models.Item {
	item := &models.Item{
		ID:        dto.ID,
		ServerID:  serverID,
		LibraryID: libraryID,
		Name:      dto.Name,
		Type:      dto.Type,
		Etag:      stringToPtr(dto.Etag),

		SeriesID:     stringToPtr(dto.SeriesID),
		SeriesName:   stringToPtr(dto.SeriesName),
		SeasonID:     stringToPtr(dto.SeasonID),
		SeasonIndex:  dto.ParentIndexNumber,
		EpisodeIndex: dto.IndexNumber,

		ProductionYear: dto.ProductionYear,
		PremiereDate:   dto.PremiereDate,
		DateCreated:    dto.DateCreated,
		Path:           stringToPtr(dto.Path),
		Container:      stringToPtr(dto.Container),

		CommunityRating: dto.CommunityRating,
		OfficialRating:  stringToPtr(dto.OfficialRating),
		RuntimeTicks:    dto.RunTimeTicks,

		ProviderIDs: models.NormalizeProviderIDs(dto.ProviderIDs),
		Genres:      dto.Genres,
		Tags:        dto.Tags,

		PrimaryImageTag:   stringToPtr(dto.PrimaryImageTag()),
		PrimaryBlurHash:   stringToPtr(dto.PrimaryBlurHash()),
		BackdropImageTags: dto.BackdropImageTags,
	}

	// Seasons carry their own index in IndexNumber, not ParentIndexNumber.
	if dto.Type == models.ItemTypeSeason {
		item.SeasonIndex = dto.IndexNumber
		item.EpisodeIndex = nil
	}

	if raw, err := json.Marshal(dto); err == nil {
		item.RawData = raw
	}

	return item
}

// mapMinimalItem converts a snapshot DTO into the identity projection the
// matcher works on. Applies the same Season index quirk as mapJellyfinItem.
func mapMinimalItem(dto *models.JellyfinItem) *models.MinimalItem {
	m := &models.MinimalItem{
		ID:             dto.ID,
		LibraryID:      dto.ParentID,
		Type:           dto.Type,
		Name:           dto.Name,
		SeriesName:     stringToPtr(dto.SeriesName),
		SeasonIndex:    dto.ParentIndexNumber,
		EpisodeIndex:   dto.IndexNumber,
		ProductionYear: dto.ProductionYear,
		ProviderIDs:    models.NormalizeProviderIDs(dto.ProviderIDs),
	}
	if dto.Type == models.ItemTypeSeason {
		m.SeasonIndex = dto.IndexNumber
		m.EpisodeIndex = nil
	}
	return m
}

// mapJellyfinUser converts an API user DTO into the local row shape.
func mapJellyfinUser(serverID string, dto *models.JellyfinUser) *models.User {
	user := &models.User{
		ID:               dto.ID,
		ServerID:         serverID,
		Name:             dto.Name,
		LastLoginDate:    dto.LastLoginDate,
		LastActivityDate: dto.LastActivityDate,
	}
	if dto.Policy != nil {
		user.IsAdministrator = dto.Policy.IsAdministrator
		user.IsDisabled = dto.Policy.IsDisabled
	}
	return user
}

// mapJellyfinLibrary converts a virtual-folder DTO into the local row shape.
func mapJellyfinLibrary(serverID string, dto *models.JellyfinLibrary) *models.Library {
	return &models.Library{
		ID:             dto.ItemID,
		ServerID:       serverID,
		Name:           dto.Name,
		CollectionType: dto.CollectionType,
		Locations:      dto.Locations,
	}
}

// mapJellyfinActivity converts an activity-log DTO into the local row shape.
// The system-user sentinel and references to users we have never seen both
// map to a NULL user reference rather than a dangling foreign key.
func mapJellyfinActivity(serverID string, dto *models.JellyfinActivityEntry, knownUsers map[string]struct{}) *models.Activity {
	a := &models.Activity{
		ID:            dto.ID,
		ServerID:      serverID,
		Name:          dto.Name,
		Type:          dto.Type,
		Severity:      dto.Severity,
		ShortOverview: stringToPtr(dto.ShortOverview),
		Overview:      stringToPtr(dto.Overview),
		ItemID:        stringToPtr(dto.ItemID),
		Date:          dto.Date,
	}

	if dto.UserID != "" && dto.UserID != models.SystemUserID {
		if _, ok := knownUsers[dto.UserID]; ok {
			a.UserID = stringToPtr(dto.UserID)
		}
	}

	return a
}
