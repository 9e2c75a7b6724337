package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const (
	KindBackerFeedAppend       = "backer_feed.append"
	KindOrderConfirmationEmail = "email.order_confirmation"
	KindOperatorAlert          = "alert.operator"
)

// Task is one persisted best-effort side effect.
type Task struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	Kind          string         `json:"kind" gorm:"not null"`
	DedupeKey     string         `json:"dedupe_key" gorm:"not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Status        Status         `json:"status" gorm:"not null"`
	Attempts      int            `json:"attempts" gorm:"not null"`
	LastError     *string        `json:"last_error,omitempty"`
	NextAttemptAt time.Time      `json:"next_attempt_at" gorm:"not null"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null"`
}

func (Task) TableName() string { return "side_effect_tasks" }

// Handler performs the side effect described by payload.
type Handler func(ctx context.Context, payload []byte) error

// Enqueuer records a side effect for at-least-once execution. The same
// (kind, dedupeKey) is only ever enqueued once.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind, dedupeKey string, payload any) error
}

type ListFilter struct {
	Status   Status
	AfterID  snowflake.ID
	PageSize int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, task *Task) (bool, error)
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Task, error)
	ListDue(ctx context.Context, db *gorm.DB, now, staleRunningBefore time.Time, limit int) ([]Task, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Task, error)
	// MarkRunning moves the task to running only if it still has the expected attempt count.
	MarkRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedAttempts int, now time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, lastError string, nextAttemptAt, now time.Time) error
	ResetForReplay(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
