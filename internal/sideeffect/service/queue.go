package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/panjf2000/ants/v2"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	handlerTimeout   = 30 * time.Second
	maxBackoff       = time.Hour
	staleRunningTask = 5 * time.Minute
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Config     config.Config
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
}

// Queue persists side effects and executes them on a bounded goroutine pool.
type Queue struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	cfg        config.TaskConfig
	pool       *ants.Pool
	obsMetrics *obsmetrics.Metrics
	jobMetrics *obsmetrics.JobMetrics

	mu       sync.RWMutex
	handlers map[string]domain.Handler
}

func New(p Params) (*Queue, error) {
	cfg := p.Config.Tasks
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}

	log := p.Log.Named("sideeffect.queue")
	pool, err := ants.NewPool(cfg.PoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			log.Error("side effect panicked", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Queue{
		db:         p.DB,
		log:        log,
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		cfg:        cfg,
		pool:       pool,
		obsMetrics: p.ObsMetrics,
		jobMetrics: p.JobMetrics,
		handlers:   make(map[string]domain.Handler),
	}, nil
}

// Register binds a handler to a task kind. Registering a kind twice replaces the handler.
func (q *Queue) Register(kind string, handler domain.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = handler
}

func (q *Queue) handler(kind string) (domain.Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[kind]
	return h, ok
}

func (q *Queue) Enqueue(ctx context.Context, kind, dedupeKey string, payload any) error {
	kind = strings.TrimSpace(kind)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if kind == "" || dedupeKey == "" {
		return domain.ErrInvalidTask
	}
	if _, ok := q.handler(kind); !ok {
		return domain.ErrUnknownKind
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTask, err)
	}

	now := q.clock.Now().UTC()
	task := &domain.Task{
		ID:            q.genID.Generate(),
		Kind:          kind,
		DedupeKey:     dedupeKey,
		Payload:       datatypes.JSON(raw),
		Status:        domain.StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := q.repo.Insert(ctx, q.db, task)
	if err != nil {
		return err
	}
	if !inserted {
		q.log.Debug("side effect already enqueued",
			zap.String("kind", kind),
			zap.String("dedupe_key", dedupeKey),
		)
		return nil
	}

	q.obsMetrics.RecordSideEffect(ctx, kind, string(domain.StatusPending))
	q.dispatch(context.WithoutCancel(ctx), *task)
	return nil
}

// dispatch hands the task to the pool. A saturated pool leaves the task
// pending for the retry job.
func (q *Queue) dispatch(ctx context.Context, task domain.Task) {
	err := q.pool.Submit(func() {
		q.execute(ctx, task)
	})
	q.jobMetrics.SetPoolRunning(q.pool.Running())
	if err != nil {
		q.jobMetrics.IncPoolRejected()
		q.log.Warn("worker pool rejected side effect",
			zap.String("task_id", task.ID.String()),
			zap.String("kind", task.Kind),
			zap.Error(err),
		)
	}
}

// execute runs one attempt of task and records its outcome. It returns false
// when another worker already claimed the attempt.
func (q *Queue) execute(ctx context.Context, task domain.Task) bool {
	log := q.log.With(
		zap.String("task_id", task.ID.String()),
		zap.String("kind", task.Kind),
	)

	now := q.clock.Now().UTC()
	claimed, err := q.repo.MarkRunning(ctx, q.db, task.ID, task.Attempts, now)
	if err != nil {
		log.Error("failed to claim side effect", zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}
	attempts := task.Attempts + 1

	handler, ok := q.handler(task.Kind)
	if !ok {
		q.finish(ctx, log, task, attempts, domain.ErrUnknownKind, true)
		return true
	}

	runCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	q.finish(ctx, log, task, attempts, safeCall(runCtx, handler, task.Payload), false)
	return true
}

func (q *Queue) finish(ctx context.Context, log *zap.Logger, task domain.Task, attempts int, runErr error, terminal bool) {
	now := q.clock.Now().UTC()
	if runErr == nil {
		if err := q.repo.MarkSucceeded(ctx, q.db, task.ID, now); err != nil {
			log.Error("failed to mark side effect succeeded", zap.Error(err))
			return
		}
		q.obsMetrics.RecordSideEffect(ctx, task.Kind, string(domain.StatusSucceeded))
		return
	}

	status := domain.StatusPending
	if terminal || attempts >= q.cfg.MaxAttempts {
		status = domain.StatusFailed
	}
	next := now.Add(Backoff(q.cfg.RetryInterval, attempts))
	if err := q.repo.MarkFailed(ctx, q.db, task.ID, status, runErr.Error(), next, now); err != nil {
		log.Error("failed to record side effect failure", zap.Error(err))
		return
	}
	q.obsMetrics.RecordSideEffect(ctx, task.Kind, string(status))

	if status == domain.StatusFailed {
		log.Error("side effect failed permanently",
			zap.Int("attempts", attempts),
			zap.Error(runErr),
		)
		return
	}
	log.Warn("side effect failed, will retry",
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(runErr),
	)
}

// RetryDue runs every task whose retry time has passed, inline, and reports
// how many attempts it made.
func (q *Queue) RetryDue(ctx context.Context, limit int) (int, error) {
	now := q.clock.Now().UTC()
	tasks, err := q.repo.ListDue(ctx, q.db, now, now.Add(-staleRunningTask), limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if q.execute(ctx, task) {
			processed++
		}
	}
	return processed, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	task, err := q.repo.Get(ctx, q.db, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func (q *Queue) List(ctx context.Context, status domain.Status, page pagination.Pagination) ([]domain.Task, pagination.PageInfo, error) {
	switch status {
	case "", domain.StatusPending, domain.StatusRunning, domain.StatusSucceeded, domain.StatusFailed:
	default:
		return nil, pagination.PageInfo{}, domain.ErrInvalidTask
	}

	filter := domain.ListFilter{Status: status, PageSize: page.Limit() + 1}
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, domain.ErrInvalidTask
	}
	if cursor != nil {
		afterID, err := parseID(cursor.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		filter.AfterID = afterID
	}

	items, err := q.repo.List(ctx, q.db, filter)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.BuildCursorPageInfo(items, page.Limit(), func(t domain.Task) pagination.Cursor {
		return pagination.Cursor{ID: t.ID.String(), CreatedAt: t.CreatedAt.Format(time.RFC3339)}
	})
}

// Replay resets a permanently failed task and dispatches it again.
func (q *Queue) Replay(ctx context.Context, id string) (*domain.Task, error) {
	taskID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	now := q.clock.Now().UTC()
	reset, err := q.repo.ResetForReplay(ctx, q.db, taskID, now)
	if err != nil {
		return nil, err
	}
	task, err := q.repo.Get(ctx, q.db, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	if !reset {
		return nil, domain.ErrTaskNotReplayable
	}

	q.log.Info("side effect replayed", zap.String("task_id", task.ID.String()), zap.String("kind", task.Kind))
	q.dispatch(context.WithoutCancel(ctx), *task)
	return task, nil
}

// Close waits up to timeout for in-flight side effects.
func (q *Queue) Close(timeout time.Duration) error {
	return q.pool.ReleaseTimeout(timeout)
}

// Backoff doubles base per attempt, capped at one hour.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return min(delay, maxBackoff)
}

func safeCall(ctx context.Context, handler domain.Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, domain.ErrTaskNotFound
	}
	return snowflake.ID(parsed), nil
}
