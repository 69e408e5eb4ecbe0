package registry

import (
	"context"
	"log/slog"

	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/domain/model"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *config.Config) (*ShardRouter, error) {
			return NewShardRouter(cfg.ShardCount)
		},
		func(cfg *config.Config, router *ShardRouter, mailbox Enqueuer, logger *slog.Logger) *Registry {
			return NewRegistry(Config{
				Rooms:                 cfg.Rooms,
				MaxConnectionsPerRoom: cfg.MaxConnectionsPerRoom,
				HistoryLimit:          cfg.HistoryLimit,
			}, router, mailbox, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, g *Registry) {
		lc.Append(fx.Hook{
			// Runs after the background loops have stopped; no new batches
			// can reference the connections being torn down.
			OnStop: func(ctx context.Context) error {
				g.CloseAll(model.CloseServerShutdown)
				return nil
			},
		})
	}),
)
