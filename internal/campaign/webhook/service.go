// Package webhook runs the campaign reconciliation pipeline for one verified
// Shopify delivery: parse, deduplicate, aggregate, apply.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/campaign/aggregator"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/campaign/progress"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	obslogger "github.com/smallbiznis/campaignbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	"github.com/smallbiznis/campaignbridge/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Ledger     domain.EventLedger
	Aggregator *aggregator.Aggregator
	Applier    domain.Applier
	Config     *config.CampaignConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	ledger     domain.EventLedger
	aggregator *aggregator.Aggregator
	applier    domain.Applier
	cfg        *config.CampaignConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("campaign.webhook"),
		clock:      p.Clock,
		ledger:     p.Ledger,
		aggregator: p.Aggregator,
		applier:    p.Applier,
		cfg:        p.Config,
		obsMetrics: p.ObsMetrics,
	}
}

// Delivery is one verified webhook request.
type Delivery struct {
	Topic      string
	WebhookID  string
	ShopDomain string
	Body       []byte
}

type Result struct {
	Outcome    string
	EventKey   string
	Products   int
	Applied    int
	Duplicates int
}

// event is a parsed delivery reduced to what the pipeline needs.
type event struct {
	kind    domain.EventKind
	key     string
	order   *domain.Order
	totals  map[string]domain.Totals
	ignored bool
}

// Ingest applies the campaign effect of a delivery exactly once per
// (event, product). It returns a *domain.ParseError for malformed payloads and
// domain.ErrEventInProgress when another worker holds a fresh claim.
func (s *Service) Ingest(ctx context.Context, d Delivery) (Result, error) {
	topic := strings.TrimSpace(d.Topic)
	d.Topic = topic
	log := obslogger.WithWebhook(obslogger.WithContext(ctx, s.log), topic, d.WebhookID)

	ev, err := s.parse(ctx, topic, d.Body)
	if err != nil {
		var perr *domain.ParseError
		if errors.As(err, &perr) {
			s.obsMetrics.RecordWebhookEvent(ctx, topic, OutcomeInvalid)
			log.Warn("rejected malformed webhook payload", zap.Error(err))
			return Result{Outcome: OutcomeInvalid}, err
		}
		s.obsMetrics.RecordWebhookEvent(ctx, topic, OutcomeError)
		log.Error("failed to aggregate webhook", zap.Error(err))
		return Result{Outcome: OutcomeError}, err
	}
	if ev.ignored {
		s.obsMetrics.RecordWebhookEvent(ctx, topic, OutcomeIgnored)
		log.Debug("webhook ignored")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	result := Result{EventKey: ev.key, Products: len(ev.totals)}
	if len(ev.totals) == 0 {
		result.Outcome = OutcomeIgnored
		s.obsMetrics.RecordWebhookEvent(ctx, topic, OutcomeIgnored)
		log.Debug("no campaign products in event", zap.String("event_key", ev.key))
		return result, nil
	}

	deltas := aggregator.Deltas(ev.kind, ev.totals)
	productGIDs := make([]string, 0, len(deltas))
	for gid := range deltas {
		productGIDs = append(productGIDs, gid)
	}
	sort.Strings(productGIDs)

	cfg := s.cfg.Get()
	var errs error
	for _, gid := range productGIDs {
		applied, err := s.applyOnce(ctx, log, d, ev, gid, deltas[gid], cfg.PendingClaimStale)
		switch {
		case errors.Is(err, domain.ErrEventAlreadyProcessed):
			result.Duplicates++
		case err != nil:
			errs = errors.Join(errs, err)
		case applied:
			result.Applied++
		}
	}

	switch {
	case errs != nil:
		result.Outcome = OutcomeError
	case result.Applied == 0:
		result.Outcome = OutcomeDuplicate
	default:
		result.Outcome = OutcomeApplied
	}
	s.obsMetrics.RecordWebhookEvent(ctx, topic, result.Outcome)
	log.Info("webhook processed",
		zap.String("event_key", ev.key),
		zap.String("outcome", result.Outcome),
		zap.Int("products", result.Products),
		zap.Int("applied", result.Applied),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, errs
}

// applyOnce claims (event, product), applies the delta and marks the claim
// processed. A failed apply releases the claim so a redelivery retries it.
func (s *Service) applyOnce(
	ctx context.Context,
	log *zap.Logger,
	d Delivery,
	ev *event,
	productGID string,
	delta domain.Delta,
	staleAfter time.Duration,
) (bool, error) {
	key := domain.ProductEventKey(ev.key, productGID)
	rec := domain.EventRecord{
		Topic:      d.Topic,
		EventKey:   key,
		WebhookID:  d.WebhookID,
		ShopDomain: d.ShopDomain,
		ReceivedAt: s.clock.Now().UTC(),
	}
	if err := s.ledger.Claim(ctx, rec, staleAfter); err != nil {
		if errors.Is(err, domain.ErrEventAlreadyProcessed) {
			log.Debug("event already applied", zap.String("event_key", key))
		}
		return false, err
	}

	var entry *domain.BackerEntry
	if ev.kind == domain.KindCreate {
		entry = s.backerEntry(ev, ev.totals[productGID])
	}

	if _, err := s.applier.Apply(ctx, productGID, delta, entry); err != nil {
		if rerr := s.ledger.Release(context.WithoutCancel(ctx), d.Topic, key); rerr != nil {
			log.Error("failed to release event claim", zap.String("event_key", key), zap.Error(rerr))
		}
		return false, fmt.Errorf("apply %s: %w", productGID, err)
	}

	// The progress write already happened, so a failure here is logged rather
	// than returned: a retry would count the event twice.
	if err := s.ledger.MarkProcessed(context.WithoutCancel(ctx), d.Topic, key, s.clock.Now().UTC()); err != nil {
		log.Error("failed to mark event processed", zap.String("event_key", key), zap.Error(err))
	}
	return true, nil
}

func (s *Service) parse(ctx context.Context, topic string, body []byte) (*event, error) {
	switch topic {
	case domain.TopicOrdersCreate:
		order, err := domain.ParseOrder(body)
		if err != nil {
			return nil, err
		}
		totals, err := s.aggregator.AggregateOrder(ctx, order)
		if err != nil {
			return nil, err
		}
		return &event{kind: domain.KindCreate, key: domain.OrderEventKey(order.ID), order: order, totals: totals}, nil

	case domain.TopicOrdersUpdated:
		order, err := domain.ParseOrder(body)
		if err != nil {
			return nil, err
		}
		if !order.Cancelled() {
			return &event{ignored: true}, nil
		}
		totals, err := s.aggregator.AggregateCancellation(ctx, order)
		if err != nil {
			return nil, err
		}
		return &event{kind: domain.KindCancel, key: domain.CancelEventKey(order.ID), order: order, totals: totals}, nil

	case domain.TopicRefundsCreate:
		refund, err := domain.ParseRefund(body)
		if err != nil {
			return nil, err
		}
		totals, err := s.aggregator.AggregateRefund(ctx, refund)
		if err != nil {
			return nil, err
		}
		return &event{kind: domain.KindRefund, key: domain.RefundEventKey(refund.ID), totals: totals}, nil

	default:
		return &event{ignored: true}, nil
	}
}

func (s *Service) backerEntry(ev *event, totals domain.Totals) *domain.BackerEntry {
	order := ev.order
	ref := strings.TrimSpace(order.Name)
	if ref == "" {
		ref = "#" + strconv.FormatInt(order.ID, 10)
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now().UTC()
	}
	return &domain.BackerEntry{
		Name:      order.BackerName(),
		Email:     progress.MaskEmail(order.ContactEmail()),
		Quantity:  totals.Quantity,
		Amount:    money.FormatCents(totals.AmountCents),
		OrderRef:  ref,
		Location:  progress.NormalizeLocation(order.ShippingAddress, order.BillingAddress),
		CreatedAt: createdAt.UTC(),
	}
}
