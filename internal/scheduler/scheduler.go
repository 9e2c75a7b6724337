package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-co-op/gocron/v2"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidJob = errors.New("invalid_scheduler_job")

// Job is a periodic unit of background work. Run reports how many items it
// processed in one pass.
type Job struct {
	Name      string
	Interval  time.Duration
	Timeout   time.Duration
	BatchSize int
	Run       func(ctx context.Context, batchSize int) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config                 `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
	Jobs       []Job                  `group:"scheduler_jobs"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	jobMetrics *obsmetrics.JobMetrics
	jobs       []Job
	cron       gocron.Scheduler
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidJob
	}
	cfg := p.Config.withDefaults()
	jobs := make([]Job, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		if job.Name == "" || job.Run == nil || job.Interval <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidJob, job.Name)
		}
		if job.Timeout <= 0 {
			job.Timeout = cfg.DefaultTimeout
		}
		if job.BatchSize <= 0 {
			job.BatchSize = cfg.BatchSize
		}
		jobs = append(jobs, job)
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		jobMetrics: p.JobMetrics,
		jobs:       jobs,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, job Job) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, job.Timeout)
	defer cancel()

	run := s.newJobRun(job)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", job.Name),
		zap.String("run_id", run.runID),
	)
	s.jobMetrics.IncJobRun(job.Name)

	processed, err := job.Run(ctx, job.BatchSize)
	run.AddProcessed(processed)
	s.jobMetrics.AddProcessed(job.Name, processed)
	s.jobMetrics.ObserveJobDuration(job.Name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.jobMetrics.IncJobError(job.Name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", job.Timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", job.Name, err)
}

// RunOnce runs every enabled job a single time, in registration order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, job := range s.jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job))
		}
	}
	return err
}

// Start schedules every enabled job on its own interval. Overlapping runs of
// the same job are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	for _, job := range s.jobs {
		if !s.isJobEnabled(job.Name) {
			s.log.Info("scheduler.job.disabled", zap.String("job", job.Name))
			continue
		}
		job := job
		_, err := cron.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(func() {
				if err := s.runJob(ctx, job); err != nil {
					s.log.Warn("scheduler job failed", zap.String("job", job.Name), zap.Error(err))
				}
			}),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = cron.Shutdown()
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}

	cron.Start()
	s.cron = cron
	s.log.Info("scheduler started", zap.Int("jobs", len(cron.Jobs())))
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	err := s.cron.Shutdown()
	s.cron = nil
	return err
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
