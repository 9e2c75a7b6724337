package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"go.uber.org/zap"
)

// AppendBacker is the backer_feed.append task handler. It prepends the entry to
// the product's backers metafield and keeps the newest FeedLimit entries.
// Replays of an order already in the feed are no-ops.
func (s *Service) AppendBacker(ctx context.Context, payload []byte) error {
	var task FeedAppend
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode feed append: %w", err)
	}
	if !validProductGID(task.ProductGID) {
		return domain.ErrInvalidProduct
	}
	cfg := s.cfg.Get()

	err := s.withLock(ctx, task.ProductGID, cfg.LockTTL, func() error {
		fields, err := s.store.ProductMetafields(ctx, task.ProductGID, cfg.Namespace)
		if err != nil {
			return err
		}

		feed := s.decodeFeed(task.ProductGID, fields[domain.KeyBackers])
		next, changed := PrependBacker(feed, task.Entry, cfg.FeedLimit)
		if !changed {
			return nil
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return s.store.SetMetafields(ctx, []domain.MetafieldInput{{
			OwnerID:   task.ProductGID,
			Namespace: cfg.Namespace,
			Key:       domain.KeyBackers,
			Type:      typeJSON,
			Value:     string(raw),
		}})
	})
	if err != nil {
		s.obsMetrics.RecordFeedAppend(ctx, "error")
		return err
	}
	s.obsMetrics.RecordFeedAppend(ctx, "ok")
	return nil
}

// PrependBacker returns the feed with entry first, capped at limit. It reports
// false when the order is already present.
func PrependBacker(feed []domain.BackerEntry, entry domain.BackerEntry, limit int) ([]domain.BackerEntry, bool) {
	if ref := strings.TrimSpace(entry.OrderRef); ref != "" {
		for _, existing := range feed {
			if existing.OrderRef == ref {
				return feed, false
			}
		}
	}
	out := make([]domain.BackerEntry, 0, min(len(feed)+1, max(limit, 1)))
	out = append(out, entry)
	for _, existing := range feed {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, existing)
	}
	return out, true
}

func (s *Service) decodeFeed(productGID, raw string) []domain.BackerEntry {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var feed []domain.BackerEntry
	if err := json.Unmarshal([]byte(raw), &feed); err != nil {
		s.log.Warn("backer feed unreadable, starting a new one",
			zap.String("product_gid", productGID),
			zap.Error(err),
		)
		return nil
	}
	return feed
}
