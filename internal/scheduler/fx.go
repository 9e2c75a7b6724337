package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(RegisterLifecycle),
)

// AsJob tags a constructor so its Job joins the scheduler_jobs group.
func AsJob(constructor any) any {
	return fx.Annotate(constructor, fx.ResultTags(`group:"scheduler_jobs"`))
}

func RegisterLifecycle(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			if err := sched.Start(ctx); err != nil {
				cancel()
				return err
			}

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return sched.Stop()
				},
			})
			return nil
		},
	})
}
