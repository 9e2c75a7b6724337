package sideeffect

import (
	"context"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/scheduler"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/repository"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sideeffect",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(q *service.Queue) domain.Enqueuer { return q }),
	fx.Provide(scheduler.AsJob(NewRetryJob)),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, q *service.Queue) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			timeout := 10 * time.Second
			if deadline, ok := ctx.Deadline(); ok {
				timeout = time.Until(deadline)
			}
			return q.Close(timeout)
		},
	})
}
