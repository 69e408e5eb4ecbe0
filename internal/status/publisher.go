// Package status computes room occupancy and publishes it through the same
// mailbox path as ordinary chat messages, so status updates share the
// ordering and batching guarantees of the content they describe.
package status

import (
	"context"
	"log/slog"

	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
)

// Publisher broadcasts per-room participant counts. Triggered after every
// connect/disconnect and, defensively, on the supervisor's cleanup cadence.
type Publisher struct {
	registry *registry.Registry
	logger   *slog.Logger

	// trigger coalesces bursts of occupancy changes into one refresh.
	trigger chan struct{}
}

func NewPublisher(reg *registry.Registry, logger *slog.Logger) *Publisher {
	return &Publisher{
		registry: reg,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a status refresh. Never blocks; a refresh already pending
// absorbs the request.
func (p *Publisher) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run serves refresh requests until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.trigger:
			p.Publish()
		}
	}
}

// Publish enqueues one status-kind message per configured room. Every
// message carries the full count map, so a client in any room sees the
// occupancy of all of them.
func (p *Publisher) Publish() {
	counts := p.registry.Counts()
	payload := &model.RoomStatus{Counts: counts}

	for roomID := range counts {
		p.registry.Broadcast(model.NewStatusMessage(roomID, payload))
	}
	p.logger.Debug("room status published", "rooms", len(counts))
}
