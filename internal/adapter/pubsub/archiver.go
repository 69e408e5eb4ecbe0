// Package pubsub carries delivered chat messages out of the broadcast core:
// into the durable store, and optionally onto an AMQP exchange for external
// consumers. Archival is write-behind and best effort; it never feeds back
// into a broadcast decision.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/storage"
)

// Archiver absorbs messages that went through the broadcast path. Status
// frames are transient occupancy snapshots and are skipped by convention.
type Archiver interface {
	Archive(ctx context.Context, msgs ...*model.Message)
}

// storeArchiver persists messages into the durable MessageStore.
type storeArchiver struct {
	store  storage.MessageStore
	logger *slog.Logger
}

func NewStoreArchiver(store storage.MessageStore, logger *slog.Logger) Archiver {
	return &storeArchiver{store: store, logger: logger}
}

func (a *storeArchiver) Archive(ctx context.Context, msgs ...*model.Message) {
	batch := filterDurable(msgs)
	if len(batch) == 0 {
		return
	}
	if err := a.store.SaveMessages(ctx, batch); err != nil {
		// Absorbed here: a flaky store must not disturb live delivery.
		a.logger.Warn("archive to store failed", "messages", len(batch), "error", err)
	}
}

// amqpArchiver republishes messages to a topic exchange, one routing key per
// room, so external consumers can tap the firehose without touching the core.
type amqpArchiver struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewAMQPArchiver(publisher message.Publisher, logger *slog.Logger) Archiver {
	return &amqpArchiver{publisher: publisher, logger: logger}
}

func (a *amqpArchiver) Archive(ctx context.Context, msgs ...*model.Message) {
	for _, m := range filterDurable(msgs) {
		payload, err := json.Marshal(m.Frame())
		if err != nil {
			a.logger.Error("archive marshal failure", "id", m.ID, "error", err)
			continue
		}
		wm := message.NewMessage(watermill.NewUUID(), payload)
		wm.SetContext(ctx)
		topic := fmt.Sprintf("chat.%s.message", m.RoomID)
		if err := a.publisher.Publish(topic, wm); err != nil {
			a.logger.Warn("archive publish failed", "topic", topic, "error", err)
		}
	}
}

// fanout sends every message to all configured sinks.
type fanout struct {
	sinks []Archiver
}

func NewFanout(sinks ...Archiver) Archiver {
	return &fanout{sinks: sinks}
}

func (f *fanout) Archive(ctx context.Context, msgs ...*model.Message) {
	for _, s := range f.sinks {
		s.Archive(ctx, msgs...)
	}
}

func filterDurable(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind == model.KindStatus {
			continue
		}
		out = append(out, m)
	}
	return out
}
