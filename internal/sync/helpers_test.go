// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okatz/mediatheca/internal/models"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		wantErr := errors.New("permanent")
		calls := 0
		err := retryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("error = %v, want wrapped %v", err, wantErr)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("canceled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := retryWithBackoff(ctx, 3, time.Minute, func() error {
			return errors.New("should not matter")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_ = retryWithBackoff(context.Background(), 0, time.Millisecond, func() error {
			calls++
			return nil
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}

func TestMapJellyfinItem(t *testing.T) {
	premiere := time.Date(2015, 12, 14, 0, 0, 0, 0, time.UTC)
	dto := &models.JellyfinItem{
		ID:                "ep-1",
		Name:              "Dulcinea",
		Etag:              "abc",
		Type:              models.ItemTypeEpisode,
		SeriesID:          "series-1",
		SeriesName:        "The Expanse",
		SeasonID:          "season-1",
		IndexNumber:       intPtr(1),
		ParentIndexNumber: intPtr(1),
		ProductionYear:    intPtr(2015),
		PremiereDate:      &premiere,
		Path:              "/shows/expanse/s01e01.mkv",
		Container:         "mkv",
		OfficialRating:    "TV-14",
		RunTimeTicks:      int64Ptr(27000000000),
		CommunityRating:   floatPtr(8.4),
		ProviderIDs:       map[string]string{"Tvdb": "5272424", "Imdb": ""},
		Genres:            []string{"Sci-Fi"},
		ImageTags:         map[string]string{"Primary": "tag1"},
		ImageBlurHashes: &models.JellyfinBlurHash{
			Primary: map[string]string{"tag1": "LKO2?U%2Tw=w"},
		},
	}

	item := mapJellyfinItem("srv", "lib-1", dto)

	if item.ID != "ep-1" || item.ServerID != "srv" || item.LibraryID != "lib-1" {
		t.Errorf("identity fields wrong: %+v", item)
	}
	if item.Etag == nil || *item.Etag != "abc" {
		t.Errorf("Etag = %v, want abc", item.Etag)
	}
	if item.SeasonIndex == nil || *item.SeasonIndex != 1 {
		t.Errorf("SeasonIndex = %v, want 1", item.SeasonIndex)
	}
	if item.EpisodeIndex == nil || *item.EpisodeIndex != 1 {
		t.Errorf("EpisodeIndex = %v, want 1", item.EpisodeIndex)
	}
	// Provider keys are lowercased, empty values dropped.
	if len(item.ProviderIDs) != 1 || item.ProviderIDs["tvdb"] != "5272424" {
		t.Errorf("ProviderIDs = %v", item.ProviderIDs)
	}
	if item.PrimaryImageTag == nil || *item.PrimaryImageTag != "tag1" {
		t.Errorf("PrimaryImageTag = %v", item.PrimaryImageTag)
	}
	if item.PrimaryBlurHash == nil || *item.PrimaryBlurHash != "LKO2?U%2Tw=w" {
		t.Errorf("PrimaryBlurHash = %v", item.PrimaryBlurHash)
	}
	if len(item.RawData) == 0 {
		t.Error("RawData snapshot missing")
	}
}

func TestMapJellyfinItemSeasonIndexes(t *testing.T) {
	dto := &models.JellyfinItem{
		ID:                "season-2",
		Name:              "Season 2",
		Type:              models.ItemTypeSeason,
		SeriesName:        "The Expanse",
		IndexNumber:       intPtr(2),
		ParentIndexNumber: intPtr(1),
	}

	item := mapJellyfinItem("srv", "lib-1", dto)
	if item.SeasonIndex == nil || *item.SeasonIndex != 2 {
		t.Errorf("SeasonIndex = %v, want the season's own IndexNumber", item.SeasonIndex)
	}
	if item.EpisodeIndex != nil {
		t.Errorf("EpisodeIndex = %v, want nil for a season", item.EpisodeIndex)
	}
}

func TestMapJellyfinItemEmptyOptionalFieldsAreNil(t *testing.T) {
	dto := &models.JellyfinItem{ID: "m1", Name: "Dune", Type: models.ItemTypeMovie}
	item := mapJellyfinItem("srv", "lib-1", dto)

	if item.Etag != nil || item.Path != nil || item.Container != nil || item.SeriesName != nil {
		t.Errorf("empty optional fields mapped to non-nil: %+v", item)
	}
	if item.ProviderIDs != nil {
		t.Errorf("ProviderIDs = %v, want nil", item.ProviderIDs)
	}
}

func TestMapJellyfinUser(t *testing.T) {
	dto := &models.JellyfinUser{
		ID:   "u1",
		Name: "alice",
		Policy: &models.JellyfinUserPolicy{
			IsAdministrator: true,
		},
	}
	user := mapJellyfinUser("srv", dto)
	if user.ID != "u1" || user.ServerID != "srv" || user.Name != "alice" {
		t.Errorf("user = %+v", user)
	}
	if !user.IsAdministrator {
		t.Error("IsAdministrator not mapped")
	}

	// A missing policy block leaves the flags false.
	user = mapJellyfinUser("srv", &models.JellyfinUser{ID: "u2", Name: "bob"})
	if user.IsAdministrator || user.IsDisabled {
		t.Error("policy flags set without a policy block")
	}
}
