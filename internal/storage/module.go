package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talkwire/room-broadcast-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("storage",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) (MessageStore, error) {
			switch cfg.History.Driver {
			case "sqlite", "":
				store, err := OpenSQLite(cfg.History.Path, logger)
				if err != nil {
					return nil, err
				}
				return WithBreaker(store, logger), nil
			default:
				return nil, fmt.Errorf("storage: unknown history driver %q", cfg.History.Driver)
			}
		},
		func() (*NicknameDirectory, error) {
			return NewNicknameDirectory(1000)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, store MessageStore) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return store.Close()
			},
		})
	}),
)
