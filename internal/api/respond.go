// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/okatz/mediatheca/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
