// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

/*
bus.go - In-process event bus

Sync runs publish their outcomes on a Watermill gochannel pub/sub so that
interested components (currently the event logger, later any consumer
that cares about sync completion) observe them without coupling to the
sync manager. Everything stays in-process; the bus exists for decoupling,
not for durability.
*/

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/models"
)

// Topics published on the bus.
const (
	TopicSyncCompleted      = "sync.completed"
	TopicReconcileCompleted = "reconcile.completed"
	TopicItemMigrated       = "item.migrated"
)

// SyncCompletedEvent is the payload for sync.completed and
// reconcile.completed.
type SyncCompletedEvent struct {
	ServerID   string             `json:"server_id"`
	Operation  string             `json:"operation"`
	Result     *models.SyncResult `json:"result"`
	FinishedAt time.Time          `json:"finished_at"`
}

// ItemMigratedEvent is the payload for item.migrated.
type ItemMigratedEvent struct {
	ServerID   string    `json:"server_id"`
	OldItemID  string    `json:"old_item_id"`
	NewItemID  string    `json:"new_item_id"`
	Strategy   string    `json:"strategy"`
	References int       `json:"references"`
	MigratedAt time.Time `json:"migrated_at"`
}

// Bus wraps a Watermill gochannel pub/sub.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the in-process bus.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 64,
		},
		watermill.NewSlogLogger(logging.NewSlogLogger()),
	)
	return &Bus{pubsub: pubsub}
}

// Close shuts the bus down, releasing all subscribers.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// PublishSyncCompleted emits a sync.completed or reconcile.completed event.
func (b *Bus) PublishSyncCompleted(serverID, operation string, result *models.SyncResult) {
	topic := TopicSyncCompleted
	if operation == "reconcile" {
		topic = TopicReconcileCompleted
	}
	b.publish(topic, SyncCompletedEvent{
		ServerID:   serverID,
		Operation:  operation,
		Result:     result,
		FinishedAt: time.Now().UTC(),
	})
}

// PublishItemMigrated emits an item.migrated event.
func (b *Bus) PublishItemMigrated(serverID, oldID, newID, strategy string, references int) {
	b.publish(TopicItemMigrated, ItemMigratedEvent{
		ServerID:   serverID,
		OldItemID:  oldID,
		NewItemID:  newID,
		Strategy:   strategy,
		References: references,
		MigratedAt: time.Now().UTC(),
	})
}

func (b *Bus) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Failed to encode event payload")
		return
	}
	msg := message.NewMessage(uuid.NewString(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}

// Subscribe returns a channel of messages for a topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return ch, nil
}
