// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
jellyfin.go - Jellyfin REST API Response Types

These structs mirror the subset of the Jellyfin API surface Mediatheca
consumes. Field names follow the Jellyfin JSON convention (PascalCase keys).

API Reference: https://api.jellyfin.org/
*/

package models

import "time"

// SystemUserID is the sentinel user GUID Jellyfin uses for activity entries
// generated by the server itself rather than a real user. Activities carrying
// it are stored with a NULL user reference.
const SystemUserID = "00000000-0000-0000-0000-000000000000"

// JellyfinSystemInfo represents Jellyfin server system information.
type JellyfinSystemInfo struct {
	ServerName      string `json:"ServerName"`
	Version         string `json:"Version"`
	ID              string `json:"Id"`
	OperatingSystem string `json:"OperatingSystem"`
}

// JellyfinUser represents a Jellyfin user account.
type JellyfinUser struct {
	ID               string              `json:"Id"`
	Name             string              `json:"Name"`
	LastLoginDate    *time.Time          `json:"LastLoginDate"`
	LastActivityDate *time.Time          `json:"LastActivityDate"`
	Policy           *JellyfinUserPolicy `json:"Policy"`
}

// JellyfinUserPolicy holds the subset of the user policy we track.
type JellyfinUserPolicy struct {
	IsAdministrator bool `json:"IsAdministrator"`
	IsDisabled      bool `json:"IsDisabled"`
}

// JellyfinLibrary represents a virtual folder (library) on the server.
type JellyfinLibrary struct {
	ItemID         string   `json:"ItemId"`
	Name           string   `json:"Name"`
	CollectionType string   `json:"CollectionType"`
	Locations      []string `json:"Locations"`
}

// JellyfinItem is the subset of Jellyfin's BaseItemDto that item sync tracks.
// The full response body is preserved separately as an opaque snapshot, so
// fields absent here are not lost.
type JellyfinItem struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Etag              string            `json:"Etag"`
	Type              string            `json:"Type"`
	ParentID          string            `json:"ParentId"`
	SeriesID          string            `json:"SeriesId"`
	SeriesName        string            `json:"SeriesName"`
	SeasonID          string            `json:"SeasonId"`
	SeasonName        string            `json:"SeasonName"`
	IndexNumber       *int              `json:"IndexNumber"`
	ParentIndexNumber *int              `json:"ParentIndexNumber"`
	ProductionYear    *int              `json:"ProductionYear"`
	PremiereDate      *time.Time        `json:"PremiereDate"`
	DateCreated       *time.Time        `json:"DateCreated"`
	Path              string            `json:"Path"`
	Container         string            `json:"Container"`
	CommunityRating   *float64          `json:"CommunityRating"`
	OfficialRating    string            `json:"OfficialRating"`
	RunTimeTicks      *int64            `json:"RunTimeTicks"`
	ProviderIDs       map[string]string `json:"ProviderIds"`
	Genres            []string          `json:"Genres"`
	Tags              []string          `json:"Tags"`
	ImageTags         map[string]string `json:"ImageTags"`
	BackdropImageTags []string          `json:"BackdropImageTags"`
	ImageBlurHashes   *JellyfinBlurHash `json:"ImageBlurHashes"`
	IsFolder          bool              `json:"IsFolder"`
}

// JellyfinBlurHash holds image blur hashes keyed by image tag.
type JellyfinBlurHash struct {
	Primary  map[string]string `json:"Primary"`
	Backdrop map[string]string `json:"Backdrop"`
	Logo     map[string]string `json:"Logo"`
}

// PrimaryImageTag returns the primary image tag or "".
func (i *JellyfinItem) PrimaryImageTag() string {
	if i.ImageTags == nil {
		return ""
	}
	return i.ImageTags["Primary"]
}

// PrimaryBlurHash returns the blur hash for the primary image or "".
func (i *JellyfinItem) PrimaryBlurHash() string {
	if i.ImageBlurHashes == nil || i.ImageBlurHashes.Primary == nil {
		return ""
	}
	tag := i.PrimaryImageTag()
	if tag == "" {
		return ""
	}
	return i.ImageBlurHashes.Primary[tag]
}

// JellyfinItemsPage is one page of an /Items query.
type JellyfinItemsPage struct {
	Items            []JellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
	StartIndex       int            `json:"StartIndex"`
}

// JellyfinActivityEntry is one entry of the server activity log,
// returned newest-first by /System/ActivityLog/Entries.
type JellyfinActivityEntry struct {
	ID            int64     `json:"Id"`
	Name          string    `json:"Name"`
	Type          string    `json:"Type"`
	Date          time.Time `json:"Date"`
	UserID        string    `json:"UserId"`
	Severity      string    `json:"Severity"`
	ShortOverview string    `json:"ShortOverview"`
	Overview      string    `json:"Overview"`
	ItemID        string    `json:"ItemId"`
}

// JellyfinActivityPage is one page of the activity log.
type JellyfinActivityPage struct {
	Items            []JellyfinActivityEntry `json:"Items"`
	TotalRecordCount int                     `json:"TotalRecordCount"`
	StartIndex       int                     `json:"StartIndex"`
}
