package reminder

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/events"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	"github.com/smallbiznis/clinicbilling/internal/reminder/repository"
	"github.com/smallbiznis/clinicbilling/internal/reminder/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reminder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) reminderdomain.Service { return s }),
	fx.Provide(newQueue),
	fx.Invoke(registerQueue),
)

type queueParams struct {
	fx.In

	Dispatcher reminderdomain.Service
	Config     config.Config
	Log        *zap.Logger
	Metrics    *metrics.BillingMetrics `optional:"true"`
}

func newQueue(p queueParams) *service.Queue {
	return service.NewQueue(p.Dispatcher, p.Config.Reminder, p.Log, p.Metrics)
}

func registerQueue(lc fx.Lifecycle, queue *service.Queue, bus *events.Bus) {
	bus.Subscribe(queue, invoicedomain.EventLevelChanged)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			queue.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return queue.Stop(ctx)
		},
	})
}
