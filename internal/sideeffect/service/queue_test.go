package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/repository"
	"github.com/smallbiznis/campaignbridge/pkg/db/dbtest"
	"github.com/smallbiznis/campaignbridge/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testKind = "test.kind"

func setupQueue(t *testing.T, maxAttempts int) (*Queue, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	q, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
		Config: config.Config{Tasks: config.TaskConfig{
			PoolSize:      2,
			MaxAttempts:   maxAttempts,
			RetryInterval: time.Minute,
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close(time.Second) })
	return q, db, clk
}

func loadTask(t *testing.T, db *gorm.DB, dedupeKey string) domain.Task {
	t.Helper()
	var task domain.Task
	require.NoError(t, db.Where("kind = ? AND dedupe_key = ?", testKind, dedupeKey).First(&task).Error)
	return task
}

func waitForStatus(t *testing.T, db *gorm.DB, dedupeKey string, status domain.Status, attempts int) {
	t.Helper()
	require.Eventually(t, func() bool {
		var task domain.Task
		if err := db.Where("kind = ? AND dedupe_key = ?", testKind, dedupeKey).First(&task).Error; err != nil {
			return false
		}
		return task.Status == status && task.Attempts == attempts
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnqueueRunsHandlerOnce(t *testing.T) {
	q, db, _ := setupQueue(t, 3)

	var calls atomic.Int32
	var got atomic.Value
	q.Register(testKind, func(_ context.Context, payload []byte) error {
		calls.Add(1)
		got.Store(string(payload))
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testKind, "order:1", map[string]string{"order": "1"}))
	waitForStatus(t, db, "order:1", domain.StatusSucceeded, 1)

	require.NoError(t, q.Enqueue(ctx, testKind, "order:1", map[string]string{"order": "1"}))

	var count int64
	require.NoError(t, db.Model(&domain.Task{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.EqualValues(t, 1, calls.Load())
	assert.JSONEq(t, `{"order":"1"}`, got.Load().(string))

	task := loadTask(t, db, "order:1")
	assert.NotNil(t, task.CompletedAt)
	assert.Nil(t, task.LastError)
}

func TestEnqueueRejectsUnknownKindAndBlankKey(t *testing.T) {
	q, _, _ := setupQueue(t, 3)
	q.Register(testKind, func(context.Context, []byte) error { return nil })

	err := q.Enqueue(context.Background(), "nope", "k", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)

	err = q.Enqueue(context.Background(), testKind, " ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTask)

	err = q.Enqueue(context.Background(), testKind, "k", []byte("{not json"))
	assert.ErrorIs(t, err, domain.ErrInvalidTask)
}

func TestFailedTaskIsRetriedAfterBackoff(t *testing.T) {
	q, db, clk := setupQueue(t, 3)

	var fail atomic.Bool
	fail.Store(true)
	q.Register(testKind, func(context.Context, []byte) error {
		if fail.Load() {
			return errors.New("smtp unavailable")
		}
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testKind, "mail:1", nil))
	waitForStatus(t, db, "mail:1", domain.StatusPending, 1)

	task := loadTask(t, db, "mail:1")
	require.NotNil(t, task.LastError)
	assert.Equal(t, "smtp unavailable", *task.LastError)
	assert.True(t, task.NextAttemptAt.Equal(clk.Now().Add(time.Minute)))

	processed, err := q.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, processed, "not due yet")

	fail.Store(false)
	clk.Advance(time.Minute)
	processed, err = q.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	task = loadTask(t, db, "mail:1")
	assert.Equal(t, domain.StatusSucceeded, task.Status)
	assert.Equal(t, 2, task.Attempts)
}

func TestTaskFailsPermanentlyAndCanBeReplayed(t *testing.T) {
	q, db, clk := setupQueue(t, 2)

	var fail atomic.Bool
	fail.Store(true)
	q.Register(testKind, func(context.Context, []byte) error {
		if fail.Load() {
			panic("boom")
		}
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testKind, "feed:1", nil))
	waitForStatus(t, db, "feed:1", domain.StatusPending, 1)

	clk.Advance(time.Hour)
	_, err := q.RetryDue(ctx, 10)
	require.NoError(t, err)

	task := loadTask(t, db, "feed:1")
	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Equal(t, 2, task.Attempts)
	require.NotNil(t, task.LastError)
	assert.Contains(t, *task.LastError, "handler panic")

	clk.Advance(24 * time.Hour)
	processed, err := q.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, processed, "failed tasks are left for operators")

	failed, page, err := q.List(ctx, domain.StatusFailed, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.False(t, page.HasMore)

	fail.Store(false)
	_, err = q.Replay(ctx, task.ID.String())
	require.NoError(t, err)
	waitForStatus(t, db, "feed:1", domain.StatusSucceeded, 1)

	_, err = q.Replay(ctx, task.ID.String())
	assert.ErrorIs(t, err, domain.ErrTaskNotReplayable)
	_, err = q.Replay(ctx, "123")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = q.Replay(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestListPaginates(t *testing.T) {
	q, _, _ := setupQueue(t, 3)
	q.Register(testKind, func(context.Context, []byte) error { return nil })

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, testKind, key, nil))
	}

	first, page, err := q.List(ctx, "", pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, page.HasMore)

	second, page, err := q.List(ctx, "", pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, page.HasMore)
	assert.Less(t, int64(second[0].ID), int64(first[1].ID))

	_, _, err = q.List(ctx, "bogus", pagination.Pagination{})
	assert.ErrorIs(t, err, domain.ErrInvalidTask)
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{7, time.Hour},
		{30, time.Hour},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Backoff(time.Minute, tc.attempts), "attempts=%d", tc.attempts)
	}
}
