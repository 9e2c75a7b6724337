package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"gorm.io/gorm"
)

type gormLedger struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewGormLedger(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.EventLedger {
	return &gormLedger{db: db, genID: genID, clock: clk}
}

func (r *gormLedger) Claim(ctx context.Context, rec domain.EventRecord, staleAfter time.Duration) error {
	if rec.ID == 0 {
		rec.ID = r.genID.Generate().Int64()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = r.clock.Now().UTC()
	}

	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO campaign_webhook_events (id, topic, event_key, webhook_id, shop_domain, received_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (topic, event_key) DO NOTHING`,
		rec.ID,
		rec.Topic,
		rec.EventKey,
		rec.WebhookID,
		rec.ShopDomain,
		rec.ReceivedAt,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	existing, err := r.find(ctx, rec.Topic, rec.EventKey)
	if err != nil {
		return err
	}
	if existing == nil {
		// Released between our insert and read; the redelivery will claim it.
		return domain.ErrEventInProgress
	}
	if existing.ProcessedAt != nil {
		return domain.ErrEventAlreadyProcessed
	}

	// A claim older than staleAfter belongs to a worker that died mid-flight.
	res = r.db.WithContext(ctx).Exec(
		`UPDATE campaign_webhook_events
		 SET received_at = ?, webhook_id = ?
		 WHERE topic = ? AND event_key = ? AND processed_at IS NULL AND received_at <= ?`,
		rec.ReceivedAt,
		rec.WebhookID,
		rec.Topic,
		rec.EventKey,
		rec.ReceivedAt.Add(-staleAfter),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEventInProgress
	}
	return nil
}

func (r *gormLedger) MarkProcessed(ctx context.Context, topic, eventKey string, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE campaign_webhook_events
		 SET processed_at = ?
		 WHERE topic = ? AND event_key = ?`,
		at,
		topic,
		eventKey,
	).Error
}

func (r *gormLedger) Release(ctx context.Context, topic, eventKey string) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM campaign_webhook_events
		 WHERE topic = ? AND event_key = ? AND processed_at IS NULL`,
		topic,
		eventKey,
	).Error
}

func (r *gormLedger) find(ctx context.Context, topic, eventKey string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, topic, event_key, webhook_id, shop_domain, received_at, processed_at
		 FROM campaign_webhook_events
		 WHERE topic = ? AND event_key = ?
		 LIMIT 1`,
		topic,
		eventKey,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
