package supervisor

import (
	"context"
	"log/slog"

	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/broadcast"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"github.com/talkwire/room-broadcast-service/internal/status"
	"go.uber.org/fx"
)

var Module = fx.Module("supervisor",
	fx.Provide(
		func(reg *registry.Registry, mailbox *broadcast.Mailbox, pub *status.Publisher, cfg *config.Config, logger *slog.Logger) *Supervisor {
			return New(reg, mailbox, pub, Config{
				CleanupInterval:    cfg.CleanupInterval,
				ErrorResetInterval: cfg.ErrorResetInterval,
				ProbeTimeout:       cfg.PingInterval + cfg.PingTimeout,
			}, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Supervisor) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)
