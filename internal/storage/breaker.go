package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
)

// breakerStore shields the broadcast path from a degraded store. When the
// store keeps failing the breaker opens and calls fail fast; history reads
// degrade to empty results rather than stalling a connecting client.
type breakerStore struct {
	next MessageStore
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps a MessageStore in a circuit breaker.
func WithBreaker(next MessageStore, logger *slog.Logger) MessageStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "message-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("message store breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerStore{next: next, cb: cb}
}

func (b *breakerStore) SaveMessages(ctx context.Context, msgs []*model.Message) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.SaveMessages(ctx, msgs)
	})
	return err
}

func (b *breakerStore) GetMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]*model.Message, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.GetMessages(ctx, roomID, before, limit)
	})
	if err != nil {
		return nil, err
	}
	msgs, _ := res.([]*model.Message)
	return msgs, nil
}

func (b *breakerStore) Close() error { return b.next.Close() }
