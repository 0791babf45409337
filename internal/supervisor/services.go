// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/okatz/mediatheca/internal/events"
	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/sync"
)

// SyncService runs the sync manager as a suture service.
type SyncService struct {
	manager *sync.Manager
}

// NewSyncService wraps a sync manager.
func NewSyncService(manager *sync.Manager) *SyncService {
	return &SyncService{manager: manager}
}

// Serve starts the manager and blocks until the context ends.
func (s *SyncService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to start sync manager")
		return err
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		logging.Warn().Err(err).Msg("Error stopping sync manager")
	}
	return nil
}

func (s *SyncService) String() string { return "sync-manager" }

// HTTPService runs the HTTP server as a suture service.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an http.Server.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve listens until the context ends, then shuts down gracefully.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logging.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		return err
	}
	return nil
}

func (s *HTTPService) String() string { return "http-server" }

// EventLoggerService consumes bus events and writes them to the log.
type EventLoggerService struct {
	bus *events.Bus
}

// NewEventLoggerService wraps the event bus logger.
func NewEventLoggerService(bus *events.Bus) *EventLoggerService {
	return &EventLoggerService{bus: bus}
}

// Serve runs the consumer loop until the context ends.
func (s *EventLoggerService) Serve(ctx context.Context) error {
	return s.bus.RunLogger(ctx)
}

func (s *EventLoggerService) String() string { return "event-logger" }
