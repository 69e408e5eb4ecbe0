package status

import (
	"context"

	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module("status",
	fx.Provide(NewPublisher),
	fx.Invoke(func(lc fx.Lifecycle, pub *Publisher, reg *registry.Registry) {
		// The hook must be installed before the first connect.
		reg.SetOnChange(pub.Trigger)

		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					defer close(done)
					_ = pub.Run(runCtx)
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}),
)
