// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"testing"

	"github.com/okatz/mediatheca/internal/models"
)

func episodeItem(id, series string, season, episode int, year *int) *models.MinimalItem {
	return &models.MinimalItem{
		ID:             id,
		Type:           models.ItemTypeEpisode,
		Name:           "ep",
		SeriesName:     strPtr(series),
		SeasonIndex:    intPtr(season),
		EpisodeIndex:   intPtr(episode),
		ProductionYear: year,
	}
}

func TestIdentityMatcherProviderIDWinsOverStructure(t *testing.T) {
	// Two candidates share the structural key; only one shares a provider
	// ID with the deleted row.
	c1 := episodeItem("new-1", "The Expanse", 1, 1, intPtr(2015))
	c1.ProviderIDs = map[string]string{"tvdb": "5272424"}
	c2 := episodeItem("new-2", "The Expanse", 1, 1, intPtr(2015))

	deleted := episodeItem("old-1", "The Expanse", 1, 1, intPtr(2015))
	deleted.ProviderIDs = map[string]string{"tvdb": "5272424"}

	matcher := NewIdentityMatcher([]*models.MinimalItem{c1, c2})
	match, strategy := matcher.Match(deleted)
	if match == nil || match.ID != "new-1" {
		t.Fatalf("Match() = %v, want new-1", match)
	}
	if strategy != StrategyProviderID {
		t.Errorf("strategy = %q, want %q", strategy, StrategyProviderID)
	}
}

func TestIdentityMatcherProviderKeyIsCaseInsensitiveOnName(t *testing.T) {
	c := episodeItem("new-1", "The Expanse", 1, 1, nil)
	c.ProviderIDs = map[string]string{"Tvdb": "123"}

	deleted := episodeItem("old-1", "Other Show", 9, 9, nil)
	deleted.ProviderIDs = map[string]string{"tvdb": "123"}

	matcher := NewIdentityMatcher([]*models.MinimalItem{c})
	match, _ := matcher.Match(deleted)
	if match == nil || match.ID != "new-1" {
		t.Fatal("expected provider match across provider-name casing")
	}
}

func TestIdentityMatcherStructuralKeys(t *testing.T) {
	tests := []struct {
		name       string
		candidates []*models.MinimalItem
		deleted    *models.MinimalItem
		wantID     string
		wantStrat  string
	}{
		{
			name: "episode by series season episode",
			candidates: []*models.MinimalItem{
				episodeItem("new-1", "The Expanse", 2, 5, intPtr(2017)),
			},
			deleted:   episodeItem("old-1", "the expanse", 2, 5, intPtr(2017)),
			wantID:    "new-1",
			wantStrat: StrategyEpisode,
		},
		{
			name: "episode year relaxed when exact year misses",
			candidates: []*models.MinimalItem{
				episodeItem("new-1", "The Expanse", 2, 5, intPtr(2018)),
			},
			deleted:   episodeItem("old-1", "The Expanse", 2, 5, intPtr(2017)),
			wantID:    "new-1",
			wantStrat: StrategyEpisode,
		},
		{
			name: "season by series and index",
			candidates: []*models.MinimalItem{
				{
					ID: "new-1", Type: models.ItemTypeSeason, Name: "Season 2",
					SeriesName: strPtr("The Expanse"), SeasonIndex: intPtr(2),
				},
			},
			deleted: &models.MinimalItem{
				ID: "old-1", Type: models.ItemTypeSeason, Name: "Season 2",
				SeriesName: strPtr("The Expanse"), SeasonIndex: intPtr(2),
			},
			wantID:    "new-1",
			wantStrat: StrategySeason,
		},
		{
			name: "series by name and year",
			candidates: []*models.MinimalItem{
				{ID: "new-1", Type: models.ItemTypeSeries, Name: "Dune", ProductionYear: intPtr(2021)},
			},
			deleted:   &models.MinimalItem{ID: "old-1", Type: models.ItemTypeSeries, Name: "dune", ProductionYear: intPtr(2021)},
			wantID:    "new-1",
			wantStrat: StrategySeries,
		},
		{
			name: "series with differing years never matches",
			candidates: []*models.MinimalItem{
				{ID: "new-1", Type: models.ItemTypeSeries, Name: "Dune", ProductionYear: intPtr(1984)},
			},
			deleted: &models.MinimalItem{ID: "old-1", Type: models.ItemTypeSeries, Name: "Dune", ProductionYear: intPtr(2021)},
			wantID:  "",
		},
		{
			name: "series without a year never matches",
			candidates: []*models.MinimalItem{
				{ID: "new-1", Type: models.ItemTypeSeries, Name: "Dune"},
			},
			deleted: &models.MinimalItem{ID: "old-1", Type: models.ItemTypeSeries, Name: "Dune"},
			wantID:  "",
		},
		{
			name: "series year on one side only never matches",
			candidates: []*models.MinimalItem{
				{ID: "new-1", Type: models.ItemTypeSeries, Name: "Dune", ProductionYear: intPtr(2021)},
			},
			deleted: &models.MinimalItem{ID: "old-1", Type: models.ItemTypeSeries, Name: "Dune"},
			wantID:  "",
		},
		{
			name: "ambiguous structural key never matches",
			candidates: []*models.MinimalItem{
				episodeItem("new-1", "The Expanse", 1, 1, nil),
				episodeItem("new-2", "The Expanse", 1, 1, nil),
			},
			deleted: episodeItem("old-1", "The Expanse", 1, 1, nil),
			wantID:  "",
		},
		{
			name: "type mismatch never matches",
			candidates: []*models.MinimalItem{
				{ID: "new-1", Type: models.ItemTypeMovie, Name: "Dune", ProductionYear: intPtr(2021)},
			},
			deleted: &models.MinimalItem{ID: "old-1", Type: models.ItemTypeSeries, Name: "Dune", ProductionYear: intPtr(2021)},
			wantID:  "",
		},
		{
			name: "movies are excluded from the automatic pass",
			candidates: []*models.MinimalItem{
				{ID: "new-1", Type: models.ItemTypeMovie, Name: "Dune", ProductionYear: intPtr(2021)},
			},
			deleted: &models.MinimalItem{ID: "old-1", Type: models.ItemTypeMovie, Name: "Dune", ProductionYear: intPtr(2021)},
			wantID:  "",
		},
		{
			name: "episode missing structural fields never matches",
			candidates: []*models.MinimalItem{
				episodeItem("new-1", "The Expanse", 1, 1, nil),
			},
			deleted: &models.MinimalItem{ID: "old-1", Type: models.ItemTypeEpisode, Name: "ep"},
			wantID:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := NewIdentityMatcher(tt.candidates)
			match, strategy := matcher.Match(tt.deleted)

			if tt.wantID == "" {
				if match != nil {
					t.Fatalf("Match() = %s, want no match", match.ID)
				}
				return
			}
			if match == nil {
				t.Fatal("Match() = nil, want a match")
			}
			if match.ID != tt.wantID {
				t.Errorf("Match() = %s, want %s", match.ID, tt.wantID)
			}
			if strategy != tt.wantStrat {
				t.Errorf("strategy = %q, want %q", strategy, tt.wantStrat)
			}
		})
	}
}

func TestIdentityMatcherExactYearBeatsRelaxed(t *testing.T) {
	exact := episodeItem("exact", "The Expanse", 1, 1, intPtr(2015))
	other := episodeItem("other", "The Expanse", 1, 1, intPtr(2019))

	deleted := episodeItem("old", "The Expanse", 1, 1, intPtr(2015))

	matcher := NewIdentityMatcher([]*models.MinimalItem{exact, other})
	match, _ := matcher.Match(deleted)
	if match == nil || match.ID != "exact" {
		t.Fatalf("Match() = %v, want the exact-year candidate", match)
	}
}

func TestMatchMoviesByNameYear(t *testing.T) {
	movie := func(id, name string, year *int) *models.Item {
		return &models.Item{ID: id, Type: models.ItemTypeMovie, Name: name, ProductionYear: year}
	}

	deleted := []*models.Item{
		movie("old-1", "Dune", intPtr(2021)),
		movie("old-2", "Solaris", nil),            // no year, skipped
		movie("old-3", "The Thing", intPtr(1982)), // ambiguous on the active side
		movie("old-4", "Stalker", intPtr(1979)),   // no active counterpart
	}
	actives := []*models.Item{
		movie("new-1", "dune", intPtr(2021)),
		movie("new-2", "The Thing", intPtr(1982)),
		movie("new-3", "The Thing", intPtr(1982)),
		movie("new-4", "Solaris", nil),
	}

	matches := MatchMoviesByNameYear(deleted, actives)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	successor, ok := matches[deleted[0]]
	if !ok || successor.ID != "new-1" {
		t.Errorf("Dune matched %v, want new-1", successor)
	}
}
