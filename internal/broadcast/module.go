package broadcast

import (
	"context"
	"log/slog"

	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module("broadcast",
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config) *Mailbox {
				return NewMailbox(cfg.ShardCount, cfg.MailboxCapacity)
			},
			fx.As(new(registry.Enqueuer)),
			fx.As(fx.Self()),
		),
		func(mailbox *Mailbox, reg *registry.Registry, cfg *config.Config, logger *slog.Logger) *Pool {
			return NewPool(mailbox, reg, Config{
				BatchSize:       cfg.BatchSize,
				BatchTimeout:    cfg.BatchTimeout,
				MinInterval:     cfg.BroadcastMinInterval,
				DeliveryTimeout: cfg.DeliveryTimeout,
			}, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, pool *Pool) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				pool.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return pool.Stop(ctx)
			},
		})
	}),
)
