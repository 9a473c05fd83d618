package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/lock"
	"github.com/smallbiznis/clinicbilling/internal/migration"
	"github.com/smallbiznis/clinicbilling/internal/observability"
	"github.com/smallbiznis/clinicbilling/internal/scheduler"
	"github.com/smallbiznis/clinicbilling/internal/server"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// HTTP API plus every billing domain it serves
		server.Module,

		// Daily escalation sweep
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
