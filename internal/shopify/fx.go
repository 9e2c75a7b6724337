package shopify

import "go.uber.org/fx"

var Module = fx.Module("shopify",
	fx.Provide(New),
)
