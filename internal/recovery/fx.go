package recovery

import (
	checkoutservice "github.com/smallbiznis/campaignbridge/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recovery",
	fx.Provide(func(s *checkoutservice.Service) OrderProcessor { return s }),
	fx.Provide(NewService),
)
