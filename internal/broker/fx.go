package broker

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("broker",
	fx.Provide(NewPublisher),
)

// NewPublisher connects to RabbitMQ when AMQP_URL is set and falls back to a
// no-op publisher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	log = log.Named("broker")
	if cfg.AMQPURL == "" {
		return NewFallback(log)
	}

	producer, err := NewProducer(cfg.AMQPURL, log)
	if err != nil {
		log.Warn("rabbitmq unavailable, using fallback publisher", zap.Error(err))
		return NewFallback(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			producer.Close()
			return nil
		},
	})
	log.Info("rabbitmq producer connected")
	return producer
}
