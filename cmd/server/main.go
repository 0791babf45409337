// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

// Package main is the entry point for the Mediatheca server.
//
// Mediatheca mirrors a Jellyfin server's library inventory and activity
// log into a local DuckDB database and keeps the mirror consistent
// through identifier churn. The server initializes in this order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file,
//     environment variables)
//  2. Database: DuckDB with the item, activity and reference schema
//  3. Jellyfin client: circuit-breaker wrapped HTTP client
//  4. Event bus: in-process Watermill pub/sub for run outcomes
//  5. Supervisor tree: sync manager, event logger, HTTP server
//
// # Configuration
//
// Environment variables override the config file (see config.yaml):
//
//	export JELLYFIN_ENABLED=true
//	export JELLYFIN_URL=http://localhost:8096
//	export JELLYFIN_API_KEY=your-api-key
//	./mediatheca
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, in-progress sync runs finish their current stage,
// and the database is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okatz/mediatheca/internal/api"
	"github.com/okatz/mediatheca/internal/config"
	"github.com/okatz/mediatheca/internal/database"
	"github.com/okatz/mediatheca/internal/events"
	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/supervisor"
	"github.com/okatz/mediatheca/internal/sync"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	}); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize logging")
	}

	logging.Info().
		Str("jellyfin_url", cfg.Jellyfin.BaseURL()).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Mediatheca")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// The circuit breaker keeps sync runs from hammering an unreachable
	// Jellyfin; a failed startup ping is informational only.
	client := sync.NewJellyfinCircuitBreakerClient(cfg.Jellyfin.BaseURL(), cfg.Jellyfin.APIKey, cfg.Jellyfin.Timeout)
	if err := client.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Jellyfin not reachable at startup (will retry)")
	} else {
		logging.Info().Msg("Connected to Jellyfin")
	}

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	manager := sync.NewManager(cfg, client, db, bus)

	handler := api.NewHandler(manager, db, client)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(supervisor.NewSyncService(manager))
	tree.AddSyncService(supervisor.NewEventLoggerService(bus))
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Mediatheca stopped")
}
