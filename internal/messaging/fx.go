package messaging

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/broker"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("messaging",
	fx.Provide(NewGateway),
)

type GatewayParams struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Publisher broker.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

// NewGateway selects the driver named by MESSAGING_DRIVER.
func NewGateway(p GatewayParams) Gateway {
	log := p.Log.Named("messaging")
	cfg := p.Config.Messaging

	driver := cfg.Driver
	var gw Gateway
	switch driver {
	case config.MessagingDriverSMTP:
		if cfg.SMTPHost == "" {
			log.Warn("smtp driver selected without SMTP_HOST, falling back to log driver")
			driver = config.MessagingDriverLog
			gw = NewLogGateway(log)
			break
		}
		gw = NewSMTPGateway(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	case config.MessagingDriverAMQP:
		if p.Config.AMQPURL == "" {
			log.Warn("amqp driver selected without AMQP_URL, falling back to log driver")
			driver = config.MessagingDriverLog
			gw = NewLogGateway(log)
			break
		}
		gw = NewAMQPGateway(p.Publisher, cfg.AMQPExchange, cfg.AMQPRouting)
	default:
		driver = config.MessagingDriverLog
		gw = NewLogGateway(log)
	}

	log.Info("messaging gateway configured", zap.String("driver", driver))
	return &instrumented{next: gw, driver: driver, metrics: p.Metrics}
}

type instrumented struct {
	next    Gateway
	driver  string
	metrics *metrics.Metrics
}

func (g *instrumented) Send(ctx context.Context, recipient string, msg Message) (Result, error) {
	res, err := g.next.Send(ctx, recipient, msg)
	outcome := "delivered"
	switch {
	case err != nil:
		outcome = "error"
	case !res.Delivered:
		outcome = "rejected"
	}
	g.metrics.RecordGatewaySend(ctx, g.driver, outcome)
	return res, err
}
