// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

// Package api provides the HTTP control surface: sync triggers, status,
// health probes and Prometheus metrics, routed with Chi.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers into the HTTP mux.
type Router struct {
	handler *Handler
}

// NewRouter creates a router around the given handler.
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Setup builds the complete route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging)
	r.Use(chimiddleware.Recoverer)

	// Health and metrics stay outside the rate limit so monitoring is
	// never throttled away.
	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(100, time.Minute))

		r.Post("/sync", router.handler.TriggerSync)
		r.Post("/sync/reconcile", router.handler.TriggerReconcile)
		r.Get("/sync/status", router.handler.SyncStatus)

		r.Get("/activities", router.handler.RecentActivities)

		r.Get("/maintenance/match-movies", router.handler.PreviewMovieMatches)
		r.Post("/maintenance/match-movies", router.handler.MatchMovies)
	})

	return r
}
