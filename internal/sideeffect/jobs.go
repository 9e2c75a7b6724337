package sideeffect

import (
	"context"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/scheduler"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/service"
)

const RetryJobName = "side_effect_retry"

// NewRetryJob re-runs pending side effects whose backoff has elapsed.
func NewRetryJob(q *service.Queue, cfg config.Config) scheduler.Job {
	interval := cfg.Tasks.RetryInterval / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return scheduler.Job{
		Name:     RetryJobName,
		Interval: interval,
		Run: func(ctx context.Context, batchSize int) (int, error) {
			return q.RetryDue(ctx, batchSize)
		},
	}
}
