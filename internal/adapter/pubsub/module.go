package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/talkwire/room-broadcast-service/config"
	"github.com/talkwire/room-broadcast-service/internal/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(cfg *config.Config, store storage.MessageStore, logger *slog.Logger, lc fx.Lifecycle) (Archiver, error) {
			sinks := []Archiver{NewStoreArchiver(store, logger)}

			if cfg.Archive.Enabled {
				amqpCfg := amqp.NewDurablePubSubConfig(cfg.Archive.AMQPURL, nil)
				amqpCfg.Exchange.GenerateName = func(string) string { return cfg.Archive.Exchange }
				amqpCfg.Exchange.Type = "topic"

				publisher, err := amqp.NewPublisher(amqpCfg, watermill.NewSlogLogger(logger))
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						return publisher.Close()
					},
				})
				sinks = append(sinks, NewAMQPArchiver(publisher, logger))
			}

			if len(sinks) == 1 {
				return sinks[0], nil
			}
			return NewFanout(sinks...), nil
		},
	),
)
