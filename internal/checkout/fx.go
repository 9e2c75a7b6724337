package checkout

import (
	"context"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/checkout/repository"
	"github.com/smallbiznis/campaignbridge/internal/checkout/service"
	"github.com/smallbiznis/campaignbridge/internal/scheduler"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
	"go.uber.org/fx"
)

const SweepJobName = "order_link_sweep"

var Module = fx.Module("checkout",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *shopify.Client) service.OrderCreator { return c }),
	fx.Provide(service.NewBridge),
	fx.Provide(service.NewService),
	fx.Provide(service.NewWebhookService),
	fx.Provide(scheduler.AsJob(NewSweepJob)),
)

// NewSweepJob alerts operators about order links that need a human.
func NewSweepJob(b *service.Bridge) scheduler.Job {
	return scheduler.Job{
		Name:     SweepJobName,
		Interval: 10 * time.Minute,
		Run: func(ctx context.Context, batchSize int) (int, error) {
			return b.SweepStuckLinks(ctx, batchSize)
		},
	}
}
