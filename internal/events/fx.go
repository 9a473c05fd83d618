package events

import (
	"github.com/smallbiznis/clinicbilling/internal/broker"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewBus),
	fx.Provide(func(bus *Bus) Publisher { return bus }),
	fx.Invoke(registerForwarder),
)

func registerForwarder(bus *Bus, publisher broker.Publisher, cfg config.Config, log *zap.Logger) {
	if cfg.AMQPURL == "" {
		return
	}
	bus.Subscribe(NewForwarder(publisher, cfg.AMQPEventExchange))
	log.Info("forwarding billing events to rabbitmq", zap.String("exchange", cfg.AMQPEventExchange))
}
