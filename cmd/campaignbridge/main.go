package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/campaign"
	"github.com/smallbiznis/campaignbridge/internal/checkout"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/migration"
	"github.com/smallbiznis/campaignbridge/internal/observability"
	"github.com/smallbiznis/campaignbridge/internal/providers"
	"github.com/smallbiznis/campaignbridge/internal/ratelimit"
	"github.com/smallbiznis/campaignbridge/internal/scheduler"
	"github.com/smallbiznis/campaignbridge/internal/server"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect"
	"github.com/smallbiznis/campaignbridge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		ratelimit.Module,
		shopify.Module,
		sideeffect.Module,
		providers.Module,
		campaign.Module,
		checkout.Module,
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
