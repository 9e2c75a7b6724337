package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"gorm.io/gorm"
)

const taskColumns = `id, kind, dedupe_key, payload, status, attempts, last_error,
	next_attempt_at, completed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, task *domain.Task) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO side_effect_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, dedupe_key) DO NOTHING`,
		task.ID,
		task.Kind,
		task.DedupeKey,
		task.Payload,
		task.Status,
		task.Attempts,
		task.LastError,
		task.NextAttemptAt,
		task.CompletedAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Task, error) {
	var item domain.Task
	err := db.WithContext(ctx).Raw(
		`SELECT `+taskColumns+`
		 FROM side_effect_tasks
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now, staleRunningBefore time.Time, limit int) ([]domain.Task, error) {
	var items []domain.Task
	err := db.WithContext(ctx).Raw(
		`SELECT `+taskColumns+`
		 FROM side_effect_tasks
		 WHERE (status = ? AND next_attempt_at <= ?)
		    OR (status = ? AND updated_at <= ?)
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		now,
		domain.StatusRunning,
		staleRunningBefore,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Task, error) {
	query := db.WithContext(ctx).Model(&domain.Task{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AfterID != 0 {
		query = query.Where("id < ?", filter.AfterID)
	}
	limit := filter.PageSize
	if limit <= 0 {
		limit = 50
	}

	var items []domain.Task
	err := query.Order("id DESC").Limit(limit).Find(&items).Error
	return items, err
}

func (r *repo) MarkRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedAttempts int, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE side_effect_tasks
		 SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND attempts = ? AND status IN (?, ?)`,
		domain.StatusRunning,
		now,
		id,
		expectedAttempts,
		domain.StatusPending,
		domain.StatusRunning,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE side_effect_tasks
		 SET status = ?, last_error = NULL, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusSucceeded,
		now,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, lastError string, nextAttemptAt, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE side_effect_tasks
		 SET status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		lastError,
		nextAttemptAt,
		now,
		id,
	).Error
}

func (r *repo) ResetForReplay(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE side_effect_tasks
		 SET status = ?, attempts = 0, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		now,
		now,
		id,
		domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
