// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package models

import (
	"testing"
	"time"
)

func TestNormalizeProviderIDs(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]string
		want map[string]string
	}{
		{"nil stays nil", nil, nil},
		{"empty map becomes nil", map[string]string{}, nil},
		{"keys are lowercased", map[string]string{"Tvdb": "1", "IMDB": "tt2"}, map[string]string{"tvdb": "1", "imdb": "tt2"}},
		{"empty values are dropped", map[string]string{"tvdb": "", "imdb": "tt2"}, map[string]string{"imdb": "tt2"}},
		{"whitespace-only values are dropped", map[string]string{"tvdb": "  "}, nil},
		{"values are trimmed", map[string]string{"tvdb": " 123 "}, map[string]string{"tvdb": "123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeProviderIDs(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestItemIsDeleted(t *testing.T) {
	item := &Item{ID: "x"}
	if item.IsDeleted() {
		t.Error("item without DeletedAt reported deleted")
	}
	now := time.Now()
	item.DeletedAt = &now
	if !item.IsDeleted() {
		t.Error("item with DeletedAt not reported deleted")
	}
}

func TestItemHasProviderIDs(t *testing.T) {
	item := &Item{}
	if item.HasProviderIDs() {
		t.Error("empty item claims provider IDs")
	}
	item.ProviderIDs = map[string]string{"tvdb": "1"}
	if !item.HasProviderIDs() {
		t.Error("item with provider IDs claims none")
	}
}
