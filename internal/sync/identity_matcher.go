// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
identity_matcher.go - Re-identification of items across ID churn

Jellyfin assigns a fresh item ID when media is removed and re-added, so a
soft-deleted row and its re-added successor share nothing but their
content. The matcher recovers the link with ordered strategies:

 1. Provider IDs: any shared (provider, id) pair is authoritative.
 2. Structural keys, strongest first:
    episodes by series name + season index + episode index, exact year
    first with a year-relaxed fallback,
    seasons by series name + season index, same year handling,
    series by name + year, both required, no relaxed fallback.

A key that two or more candidates share is ambiguous and never matched.
Movies are deliberately excluded from the automatic pass; name+year is too
weak for remakes and re-releases, so movie matching only runs through the
operator-confirmed maintenance endpoint.

The matcher works on the minimal identity projection so the same index
serves both directions: deleted local rows looked up against a remote
snapshot, and incoming items looked up against deleted local rows.
*/

package sync

import (
	"fmt"
	"strings"

	"github.com/okatz/mediatheca/internal/models"
)

// Match strategy labels, also used as metric label values.
const (
	StrategyProviderID  = "provider_id"
	StrategyEpisode     = "episode"
	StrategySeason      = "season"
	StrategySeries      = "series"
	StrategyMovieManual = "movie_manual"
)

// IdentityMatcher indexes candidates for re-identification.
type IdentityMatcher struct {
	byProviderPair map[string][]*models.MinimalItem
	byStructural   map[string][]*models.MinimalItem
}

// NewIdentityMatcher builds the candidate indexes.
func NewIdentityMatcher(candidates []*models.MinimalItem) *IdentityMatcher {
	m := &IdentityMatcher{
		byProviderPair: make(map[string][]*models.MinimalItem),
		byStructural:   make(map[string][]*models.MinimalItem),
	}

	for _, c := range candidates {
		for provider, id := range c.ProviderIDs {
			key := providerPairKey(c.Type, provider, id)
			m.byProviderPair[key] = append(m.byProviderPair[key], c)
		}
		for _, key := range structuralKeys(c) {
			m.byStructural[key] = append(m.byStructural[key], c)
		}
	}

	return m
}

// Match finds the counterpart for an item. Returns the matched
// candidate and the strategy that produced it, or (nil, "") when no
// unambiguous match exists.
func (m *IdentityMatcher) Match(item *models.MinimalItem) (*models.MinimalItem, string) {
	// Strategy 1: shared provider ID.
	for provider, id := range item.ProviderIDs {
		if c := uniqueCandidate(m.byProviderPair[providerPairKey(item.Type, provider, id)], item); c != nil {
			return c, StrategyProviderID
		}
	}

	// Strategy 2: structural keys, exact before year-relaxed.
	for _, key := range structuralKeys(item) {
		if c := uniqueCandidate(m.byStructural[key], item); c != nil {
			return c, structuralStrategy(item.Type)
		}
	}

	return nil, ""
}

// uniqueCandidate returns the single candidate of matching type that is not
// the item itself, or nil when none or several qualify.
func uniqueCandidate(candidates []*models.MinimalItem, item *models.MinimalItem) *models.MinimalItem {
	var match *models.MinimalItem
	for _, c := range candidates {
		if c.ID == item.ID || c.Type != item.Type {
			continue
		}
		if match != nil {
			return nil // ambiguous
		}
		match = c
	}
	return match
}

func providerPairKey(itemType, provider, id string) string {
	return itemType + "\x00" + strings.ToLower(provider) + "\x00" + id
}

// structuralKeys returns the lookup keys for an item, strongest first.
// Movies get none; they are only matched through the manual path. Series
// require a production year on both sides and have no relaxed key, so two
// same-named series from different years never link up.
func structuralKeys(item *models.MinimalItem) []string {
	switch item.Type {
	case models.ItemTypeEpisode:
		if item.SeriesName == nil || item.SeasonIndex == nil || item.EpisodeIndex == nil {
			return nil
		}
		base := fmt.Sprintf("episode\x00%s\x00%d\x00%d",
			strings.ToLower(*item.SeriesName), *item.SeasonIndex, *item.EpisodeIndex)
		keys := []string{base + "\x00" + yearKey(item.ProductionYear)}
		if item.ProductionYear != nil {
			keys = append(keys, base+"\x00-") // year-relaxed fallback
		}
		return keys
	case models.ItemTypeSeason:
		if item.SeriesName == nil || item.SeasonIndex == nil {
			return nil
		}
		base := fmt.Sprintf("season\x00%s\x00%d", strings.ToLower(*item.SeriesName), *item.SeasonIndex)
		keys := []string{base + "\x00" + yearKey(item.ProductionYear)}
		if item.ProductionYear != nil {
			keys = append(keys, base+"\x00-")
		}
		return keys
	case models.ItemTypeSeries:
		if item.ProductionYear == nil {
			return nil
		}
		return []string{"series\x00" + strings.ToLower(item.Name) + "\x00" + yearKey(item.ProductionYear)}
	default:
		return nil
	}
}

// yearKey encodes an optional year; "-" stands for "no year", which is also
// what the relaxed fallback key uses so that year-less rows and relaxed
// lookups meet in the same bucket.
func yearKey(year *int) string {
	if year == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *year)
}

func structuralStrategy(itemType string) string {
	switch itemType {
	case models.ItemTypeEpisode:
		return StrategyEpisode
	case models.ItemTypeSeason:
		return StrategySeason
	case models.ItemTypeSeries:
		return StrategySeries
	default:
		return ""
	}
}

// MatchMoviesByNameYear pairs soft-deleted movies with active movies that
// share an exact name (case-insensitive) and production year. Both sides
// must carry a year. Only the operator-confirmed maintenance endpoint
// calls this; it is never part of scheduled reconciliation.
func MatchMoviesByNameYear(deleted, actives []*models.Item) map[*models.Item]*models.Item {
	index := make(map[string][]*models.Item)
	for _, a := range actives {
		if a.Type != models.ItemTypeMovie || a.ProductionYear == nil {
			continue
		}
		key := movieKey(a.Name, *a.ProductionYear)
		index[key] = append(index[key], a)
	}

	matches := make(map[*models.Item]*models.Item)
	for _, d := range deleted {
		if d.Type != models.ItemTypeMovie || d.ProductionYear == nil {
			continue
		}
		candidates := index[movieKey(d.Name, *d.ProductionYear)]
		if len(candidates) == 1 {
			matches[d] = candidates[0]
		}
	}
	return matches
}

func movieKey(name string, year int) string {
	return fmt.Sprintf("%s\x00%d", strings.ToLower(name), year)
}
