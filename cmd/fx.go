package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/adapter/pubsub"
	"github.com/talkwire/room-broadcast-service/internal/broadcast"
	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"github.com/talkwire/room-broadcast-service/internal/handler/httpapi"
	"github.com/talkwire/room-broadcast-service/internal/handler/ws"
	"github.com/talkwire/room-broadcast-service/internal/service"
	"github.com/talkwire/room-broadcast-service/internal/status"
	"github.com/talkwire/room-broadcast-service/internal/storage"
	"github.com/talkwire/room-broadcast-service/internal/supervisor"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			config.NewWatcher,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger}
		}),
		fx.Invoke(runConfigWatcher),
		registry.Module,
		broadcast.Module,
		status.Module,
		supervisor.Module,
		storage.Module,
		pubsub.Module,
		service.Module,
		ws.Module,
		httpapi.Module,
	)
}

func ProvideLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})).With(
		slog.String("service", ServiceName),
		slog.String("version", version),
	)
	slog.SetDefault(logger)
	return logger
}

func runConfigWatcher(lc fx.Lifecycle, w *config.Watcher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = w.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
