package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, cfg Config, jobs ...Job) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Now()),
		Config: cfg,
		Jobs:   jobs,
	})
	require.NoError(t, err)
	return s
}

func TestRunOnceRunsEnabledJobsAndJoinsErrors(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	jobs := []Job{
		{Name: "a", Interval: time.Minute, Run: func(context.Context, int) (int, error) {
			ran = append(ran, "a")
			return 1, nil
		}},
		{Name: "b", Interval: time.Minute, Run: func(context.Context, int) (int, error) {
			ran = append(ran, "b")
			return 0, boom
		}},
		{Name: "c", Interval: time.Minute, Run: func(context.Context, int) (int, error) {
			ran = append(ran, "c")
			return 0, nil
		}},
	}

	s := newTestScheduler(t, Config{}, jobs...)
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "b: boom")
	assert.Equal(t, []string{"a", "b", "c"}, ran)

	ran = nil
	s = newTestScheduler(t, Config{EnabledJobs: []string{"C"}}, jobs...)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"c"}, ran)
}

func TestRunJobTreatsTimeoutAsSoftFailure(t *testing.T) {
	job := Job{
		Name:     "slow",
		Interval: time.Minute,
		Timeout:  10 * time.Millisecond,
		Run: func(ctx context.Context, _ int) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	s := newTestScheduler(t, Config{}, job)
	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestNewAppliesDefaultsAndRejectsInvalidJobs(t *testing.T) {
	var gotBatch int
	s := newTestScheduler(t, Config{BatchSize: 7}, Job{
		Name:     "batch",
		Interval: time.Minute,
		Run: func(_ context.Context, batchSize int) (int, error) {
			gotBatch = batchSize
			return 0, nil
		},
	})
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 7, gotBatch)

	node, _ := snowflake.NewNode(1)
	_, err := New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Jobs:  []Job{{Name: "no-interval", Run: func(context.Context, int) (int, error) { return 0, nil }}},
	})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestStartSchedulesJobs(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := newTestScheduler(t, Config{}, Job{
		Name:     "tick",
		Interval: 20 * time.Millisecond,
		Run: func(context.Context, int) (int, error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return 0, nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not scheduled")
	}
}
