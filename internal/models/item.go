// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

import (
	"strings"
	"time"
)

// Item types as reported by Jellyfin. Only the hierarchical types
// participate in structural-key matching.
const (
	ItemTypeMovie   = "Movie"
	ItemTypeSeries  = "Series"
	ItemTypeSeason  = "Season"
	ItemTypeEpisode = "Episode"
)

// Item is the local row for a Jellyfin library item.
//
// The ID is assigned by Jellyfin and is NOT stable across a delete/re-add
// cycle; provider IDs and the structural key (series name, year, season and
// episode index) are what survive re-adds. DeletedAt implements soft
// deletion: a non-nil value excludes the row from active queries but keeps
// it available as a migration candidate.
type Item struct {
	ID        string
	ServerID  string
	LibraryID string

	Name string
	Type string
	Etag *string

	// Hierarchy pointers (Episode/Season only).
	SeriesID     *string
	SeriesName   *string
	SeasonID     *string
	SeasonIndex  *int // ParentIndexNumber in Jellyfin terms
	EpisodeIndex *int // IndexNumber in Jellyfin terms

	ProductionYear *int
	PremiereDate   *time.Time
	DateCreated    *time.Time
	Path           *string
	Container      *string

	CommunityRating *float64
	OfficialRating  *string
	RuntimeTicks    *int64

	// External catalog identifiers (imdb, tmdb, tvdb, ...), lowercased
	// provider names. Stable across local delete/re-add cycles.
	ProviderIDs map[string]string

	Genres []string
	Tags   []string

	// Image metadata, tracked separately from content metadata because it
	// churns independently.
	PrimaryImageTag   *string
	PrimaryBlurHash   *string
	BackdropImageTags []string

	// RawData is the full source JSON for fields not individually tracked.
	RawData []byte

	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDeleted reports whether the item is soft-deleted.
func (i *Item) IsDeleted() bool {
	return i.DeletedAt != nil
}

// HasProviderIDs reports whether the item carries at least one non-empty
// provider ID.
func (i *Item) HasProviderIDs() bool {
	for _, v := range i.ProviderIDs {
		if v != "" {
			return true
		}
	}
	return false
}

// MinimalItem is the reduced projection used for the reconciliation
// snapshot: identity, type, provider IDs and structural keys only.
type MinimalItem struct {
	ID           string
	LibraryID    string
	Type         string
	Name         string
	SeriesName   *string
	SeasonIndex  *int
	EpisodeIndex *int

	ProductionYear *int
	ProviderIDs    map[string]string
}

// Minimal returns the identity projection of a row, the shape the matcher
// indexes and matches against.
func (i *Item) Minimal() *MinimalItem {
	return &MinimalItem{
		ID:             i.ID,
		LibraryID:      i.LibraryID,
		Type:           i.Type,
		Name:           i.Name,
		SeriesName:     i.SeriesName,
		SeasonIndex:    i.SeasonIndex,
		EpisodeIndex:   i.EpisodeIndex,
		ProductionYear: i.ProductionYear,
		ProviderIDs:    i.ProviderIDs,
	}
}

// NormalizeProviderIDs lowercases provider names and drops empty values so
// that "Imdb"/"IMDB" variants compare equal. Safe on a nil map.
func NormalizeProviderIDs(ids map[string]string) map[string]string {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]string, len(ids))
	for name, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[strings.ToLower(name)] = id
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
