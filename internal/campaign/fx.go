package campaign

import (
	"github.com/smallbiznis/campaignbridge/internal/cache"
	"github.com/smallbiznis/campaignbridge/internal/campaign/aggregator"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/campaign/progress"
	"github.com/smallbiznis/campaignbridge/internal/campaign/repository"
	"github.com/smallbiznis/campaignbridge/internal/campaign/webhook"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/ratelimit"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	sideeffectservice "github.com/smallbiznis/campaignbridge/internal/sideeffect/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign",
	fx.Provide(repository.ProvideLedger),
	fx.Provide(func(cfg *config.CampaignConfigHolder, clk clock.Clock) cache.ProductTagCache {
		return cache.NewProductTagCache(cfg.Get().TagCacheTTL, clk.Now)
	}),
	fx.Provide(func(client *shopify.Client, c cache.ProductTagCache) domain.TagResolver {
		return aggregator.NewCachedTagResolver(client, c)
	}),
	fx.Provide(aggregator.New),
	fx.Provide(progress.NewShopifyStore),
	fx.Provide(func(l *ratelimit.ProductLock) progress.ProductLocker { return l }),
	fx.Provide(progress.NewService),
	fx.Provide(func(s *progress.Service) domain.Applier { return s }),
	fx.Provide(webhook.NewService),
	fx.Invoke(func(q *sideeffectservice.Queue, s *progress.Service) {
		q.Register(sideeffectdomain.KindBackerFeedAppend, s.AppendBacker)
	}),
)
