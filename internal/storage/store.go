// Package storage provides the durable message store. The store is an
// external collaborator of the broadcast core: it seeds history reads and
// absorbs delivered messages, but never drives a broadcast decision.
package storage

import (
	"context"
	"time"

	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

// MessageStore is the request/response history interface. before is
// exclusive; the zero time means "latest". Results come back oldest first.
type MessageStore interface {
	SaveMessages(ctx context.Context, msgs []*model.Message) error
	GetMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]*model.Message, error)
	Close() error
}
