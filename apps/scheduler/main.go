package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/audit"
	"github.com/smallbiznis/clinicbilling/internal/blockingrules"
	"github.com/smallbiznis/clinicbilling/internal/broker"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/escalation"
	"github.com/smallbiznis/clinicbilling/internal/events"
	"github.com/smallbiznis/clinicbilling/internal/invoice"
	"github.com/smallbiznis/clinicbilling/internal/lock"
	"github.com/smallbiznis/clinicbilling/internal/observability"
	"github.com/smallbiznis/clinicbilling/internal/scheduler"
	"github.com/smallbiznis/clinicbilling/internal/tenant"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"go.uber.org/fx"
)

// The scheduler worker runs the escalation sweep without serving HTTP.
// Several replicas may run; the redis lock keeps one sweep per day.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the escalation engine
		audit.Module,
		broker.Module,
		events.Module,
		tenant.Module,
		blockingrules.Module,
		invoice.Module,
		escalation.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
