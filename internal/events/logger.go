// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package events

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/okatz/mediatheca/internal/logging"
)

// RunLogger consumes all bus topics and writes one structured log line per
// event. It blocks until the context is canceled or the bus closes, which
// makes it suitable as a supervised service body.
func (b *Bus) RunLogger(ctx context.Context) error {
	syncCh, err := b.Subscribe(ctx, TopicSyncCompleted)
	if err != nil {
		return err
	}
	reconcileCh, err := b.Subscribe(ctx, TopicReconcileCompleted)
	if err != nil {
		return err
	}
	migratedCh, err := b.Subscribe(ctx, TopicItemMigrated)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-syncCh:
			if !ok {
				return nil
			}
			logSyncEvent("sync.completed", msg.Payload)
			msg.Ack()
		case msg, ok := <-reconcileCh:
			if !ok {
				return nil
			}
			logSyncEvent("reconcile.completed", msg.Payload)
			msg.Ack()
		case msg, ok := <-migratedCh:
			if !ok {
				return nil
			}
			logMigratedEvent(msg.Payload)
			msg.Ack()
		}
	}
}

func logSyncEvent(topic string, payload []byte) {
	var ev SyncCompletedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Malformed event payload")
		return
	}
	if ev.Result == nil {
		return
	}
	logging.Info().
		Str("topic", topic).
		Str("server_id", ev.ServerID).
		Str("status", string(ev.Result.Status)).
		Int("inserted", ev.Result.Counts.Inserted).
		Int("updated", ev.Result.Counts.Updated).
		Int("soft_deleted", ev.Result.Counts.SoftDeleted).
		Int("migrated", ev.Result.Counts.Migrated).
		Int("errors", ev.Result.Counts.Errors).
		Int64("elapsed_ms", ev.Result.Metrics.ElapsedMs).
		Msg("Event")
}

func logMigratedEvent(payload []byte) {
	var ev ItemMigratedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logging.Warn().Err(err).Str("topic", TopicItemMigrated).Msg("Malformed event payload")
		return
	}
	logging.Info().
		Str("topic", TopicItemMigrated).
		Str("server_id", ev.ServerID).
		Str("old_id", ev.OldItemID).
		Str("new_id", ev.NewItemID).
		Str("strategy", ev.Strategy).
		Int("references", ev.References).
		Msg("Event")
}
