package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"gorm.io/gorm"
)

const linkColumns = `id, payment_intent_id, status, shopify_order_id, shopify_order_name,
	attempts, last_error, claimed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.LinkRepository {
	return &repo{}
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, link *domain.OrderLink) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_order_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_intent_id) DO NOTHING`,
		link.ID,
		link.PaymentIntentID,
		link.Status,
		link.ShopifyOrderID,
		link.ShopifyOrderName,
		link.Attempts,
		link.LastError,
		link.ClaimedAt,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.OrderLink, error) {
	var item domain.OrderLink
	err := db.WithContext(ctx).Raw(
		`SELECT `+linkColumns+`
		 FROM payment_order_links
		 WHERE payment_intent_id = ?
		 LIMIT 1`,
		paymentIntentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TakeOver(ctx context.Context, db *gorm.DB, paymentIntentID string, expectedAttempts int, staleBefore, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_order_links
		 SET status = ?, attempts = attempts + 1, claimed_at = ?, updated_at = ?
		 WHERE payment_intent_id = ?
		   AND attempts = ?
		   AND (status = ? OR (status = ? AND claimed_at <= ?))`,
		domain.LinkPending,
		now,
		now,
		paymentIntentID,
		expectedAttempts,
		domain.LinkFailed,
		domain.LinkPending,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkLinked(ctx context.Context, db *gorm.DB, paymentIntentID, orderID, orderName string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_order_links
		 SET status = ?, shopify_order_id = ?, shopify_order_name = ?, last_error = NULL, updated_at = ?
		 WHERE payment_intent_id = ?`,
		domain.LinkLinked,
		orderID,
		orderName,
		now,
		paymentIntentID,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, paymentIntentID, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_order_links
		 SET status = ?, last_error = ?, updated_at = ?
		 WHERE payment_intent_id = ? AND status <> ?`,
		domain.LinkFailed,
		lastError,
		now,
		paymentIntentID,
		domain.LinkLinked,
	).Error
}

func (r *repo) ListByIntents(ctx context.Context, db *gorm.DB, paymentIntentIDs []string) ([]domain.OrderLink, error) {
	if len(paymentIntentIDs) == 0 {
		return nil, nil
	}
	var items []domain.OrderLink
	err := db.WithContext(ctx).Raw(
		`SELECT `+linkColumns+`
		 FROM payment_order_links
		 WHERE payment_intent_id IN ?`,
		paymentIntentIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStuck(ctx context.Context, db *gorm.DB, staleBefore time.Time, limit int) ([]domain.OrderLink, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.OrderLink
	err := db.WithContext(ctx).Raw(
		`SELECT `+linkColumns+`
		 FROM payment_order_links
		 WHERE status = ? OR (status = ? AND claimed_at <= ?)
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		domain.LinkFailed,
		domain.LinkPending,
		staleBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
