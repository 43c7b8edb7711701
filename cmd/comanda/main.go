package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/audit"
	"github.com/smallbiznis/comanda/internal/authorization"
	"github.com/smallbiznis/comanda/internal/catalog"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/closing"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/migration"
	"github.com/smallbiznis/comanda/internal/observability"
	"github.com/smallbiznis/comanda/internal/order"
	"github.com/smallbiznis/comanda/internal/orderevents"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"github.com/smallbiznis/comanda/internal/scheduler"
	"github.com/smallbiznis/comanda/internal/server"
	"github.com/smallbiznis/comanda/internal/table"
	"github.com/smallbiznis/comanda/pkg/db"
	"github.com/smallbiznis/comanda/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisclient.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Functional Domains
		authorization.Module,
		audit.Module,
		table.Module,
		catalog.Module,
		orderevents.Module,
		order.Module,
		closing.Module,
		scheduler.Module,

		server.Module,
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
