// Package aggregator turns Shopify order, refund and cancellation payloads
// into per-product campaign totals.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
)

type Aggregator struct {
	resolver domain.TagResolver
	cfg      *config.CampaignConfigHolder
}

func New(resolver domain.TagResolver, cfg *config.CampaignConfigHolder) *Aggregator {
	return &Aggregator{resolver: resolver, cfg: cfg}
}

type line struct {
	productGID string
	quantity   int64
	amount     int64
}

// AggregateOrder sums quantity and price×quantity per campaign product.
func (a *Aggregator) AggregateOrder(ctx context.Context, order *domain.Order) (map[string]domain.Totals, error) {
	if order == nil {
		return map[string]domain.Totals{}, nil
	}
	lines := make([]line, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		if l, ok := toLine(item, item.Quantity); ok {
			lines = append(lines, l)
		}
	}
	return a.aggregate(ctx, lines, 1)
}

// AggregateRefund negates the refunded quantity of each nested line item.
func (a *Aggregator) AggregateRefund(ctx context.Context, refund *domain.Refund) (map[string]domain.Totals, error) {
	if refund == nil {
		return map[string]domain.Totals{}, nil
	}
	lines := make([]line, 0, len(refund.RefundLineItems))
	for _, rli := range refund.RefundLineItems {
		if l, ok := toLine(rli.LineItem, rli.Quantity); ok {
			lines = append(lines, l)
		}
	}
	return a.aggregate(ctx, lines, -1)
}

// AggregateCancellation negates the whole cancelled order.
func (a *Aggregator) AggregateCancellation(ctx context.Context, order *domain.Order) (map[string]domain.Totals, error) {
	if order == nil {
		return map[string]domain.Totals{}, nil
	}
	lines := make([]line, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		if l, ok := toLine(item, item.Quantity); ok {
			lines = append(lines, l)
		}
	}
	return a.aggregate(ctx, lines, -1)
}

func toLine(item domain.LineItem, quantity int64) (line, bool) {
	// Custom line items and tips carry no product.
	if item.ProductID == nil || *item.ProductID <= 0 || quantity <= 0 {
		return line{}, false
	}
	return line{
		productGID: shopify.ProductGIDFromInt(*item.ProductID),
		quantity:   quantity,
		amount:     item.Price.Cents * quantity,
	}, true
}

func (a *Aggregator) aggregate(ctx context.Context, lines []line, sign int64) (map[string]domain.Totals, error) {
	out := make(map[string]domain.Totals)
	if len(lines) == 0 {
		return out, nil
	}

	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.productGID]; ok {
			continue
		}
		seen[l.productGID] = struct{}{}
		ids = append(ids, l.productGID)
	}
	sort.Strings(ids)

	tags, err := a.resolver.ProductTags(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve product tags: %w", err)
	}

	campaignTag := a.cfg.Get().Tag
	for _, l := range lines {
		if !HasTag(tags[l.productGID], campaignTag) {
			continue
		}
		t := out[l.productGID]
		t.Quantity += sign * l.quantity
		t.AmountCents += sign * l.amount
		t.Lines++
		out[l.productGID] = t
	}
	return out, nil
}

// HasTag matches Shopify tags case-insensitively.
func HasTag(tags []string, tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Deltas converts aggregated totals into progress deltas for the event kind.
// An order adds one backer per product, a cancellation removes one per
// product whatever its line count, and a refund leaves backers unchanged.
func Deltas(kind domain.EventKind, totals map[string]domain.Totals) map[string]domain.Delta {
	out := make(map[string]domain.Delta, len(totals))
	for productGID, t := range totals {
		d := domain.Delta{
			CurrentQuantity:  t.Quantity,
			TotalRaisedCents: t.AmountCents,
		}
		switch kind {
		case domain.KindCreate:
			d.BackerCount = 1
		case domain.KindCancel:
			d.BackerCount = -1
		}
		out[productGID] = d
	}
	return out
}
