package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// PaymentIntents is the subset of the payment platform the checkout uses.
type PaymentIntents interface {
	New(ctx context.Context, params NewIntentParams) (*PaymentIntent, error)
	Get(ctx context.Context, id string) (*PaymentIntent, error)
	Update(ctx context.Context, id string, params UpdateIntentParams) (*PaymentIntent, error)
	// List returns intents created at or after since, newest first.
	List(ctx context.Context, since time.Time) ([]PaymentIntent, error)
}

// PaymentEvent is a verified payment-platform webhook event.
type PaymentEvent struct {
	ID     string
	Type   string
	Intent *PaymentIntent
}

type EventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (*PaymentEvent, error)
}

type LinkRepository interface {
	// Claim inserts a pending link; false means one already exists.
	Claim(ctx context.Context, db *gorm.DB, link *OrderLink) (bool, error)
	FindByIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*OrderLink, error)
	// TakeOver re-claims a failed link, or a pending one claimed at or before
	// staleBefore, provided its attempt count is still expectedAttempts.
	TakeOver(ctx context.Context, db *gorm.DB, paymentIntentID string, expectedAttempts int, staleBefore, now time.Time) (bool, error)
	MarkLinked(ctx context.Context, db *gorm.DB, paymentIntentID, orderID, orderName string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, paymentIntentID, lastError string, now time.Time) error
	ListByIntents(ctx context.Context, db *gorm.DB, paymentIntentIDs []string) ([]OrderLink, error)
	// ListStuck returns failed links and pending links claimed at or before staleBefore.
	ListStuck(ctx context.Context, db *gorm.DB, staleBefore time.Time, limit int) ([]OrderLink, error)
}
