// Package recovery finds succeeded payments that never produced a Shopify
// order and replays them through the order bridge.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrAborted = errors.New("recovery_aborted")

// OrderProcessor runs the payment-to-order bridge for a fetched intent.
type OrderProcessor interface {
	ProcessIntent(ctx context.Context, intent *domain.PaymentIntent, req *domain.OrderRequest) (*domain.OrderResult, error)
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.LinkRepository
	Intents   domain.PaymentIntents
	Processor OrderProcessor
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.LinkRepository
	intents   domain.PaymentIntents
	processor OrderProcessor
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("recovery"),
		clock:     p.Clock,
		repo:      p.Repo,
		intents:   p.Intents,
		processor: p.Processor,
		sleep:     sleepContext,
	}
}

// Record is one succeeded payment found by Scan.
type Record struct {
	PaymentIntentID string
	Amount          int64
	Currency        string
	Created         time.Time
	CustomerEmail   string
	OrderID         string
	OrderName       string
	LinkStatus      domain.LinkStatus
	LastError       string
	// Incomplete is set when the order cannot be rebuilt from metadata.
	Incomplete bool
}

type Report struct {
	Since    time.Time
	Scanned  int
	Linked   []Record
	Unlinked []Record
}

// Scan lists succeeded intents created within lookback and splits them by
// whether an order is linked, through metadata or the ledger.
func (s *Service) Scan(ctx context.Context, lookback time.Duration) (*Report, error) {
	since := s.clock.Now().Add(-lookback)
	intents, err := s.intents.List(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &Report{Since: since, Scanned: len(intents)}
	succeeded := make([]domain.PaymentIntent, 0, len(intents))
	ids := make([]string, 0, len(intents))
	for _, pi := range intents {
		if pi.Status != domain.IntentSucceeded {
			continue
		}
		succeeded = append(succeeded, pi)
		ids = append(ids, pi.ID)
	}
	if len(succeeded) == 0 {
		return report, nil
	}

	links, err := s.repo.ListByIntents(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byIntent := make(map[string]domain.OrderLink, len(links))
	for _, link := range links {
		byIntent[link.PaymentIntentID] = link
	}

	for i := range succeeded {
		pi := &succeeded[i]
		rec := Record{
			PaymentIntentID: pi.ID,
			Amount:          pi.Amount,
			Currency:        strings.ToUpper(pi.Currency),
			Created:         pi.Created,
			CustomerEmail:   pi.Meta(domain.MetaCustomerEmail),
			LastError:       pi.Meta(domain.MetaShopifyOrderError),
		}
		if link, ok := byIntent[pi.ID]; ok {
			rec.LinkStatus = link.Status
			if link.LastError != nil && rec.LastError == "" {
				rec.LastError = *link.LastError
			}
			if link.Status == domain.LinkLinked && link.ShopifyOrderID != nil {
				rec.OrderID = *link.ShopifyOrderID
				if link.ShopifyOrderName != nil {
					rec.OrderName = *link.ShopifyOrderName
				}
			}
		}
		if linked, ok := pi.LinkedOrder(); ok {
			rec.OrderID, rec.OrderName = linked.OrderID, linked.OrderName
		}

		if rec.OrderID != "" {
			report.Linked = append(report.Linked, rec)
			continue
		}
		if _, err := RebuildOrder(pi); err != nil {
			rec.Incomplete = true
		}
		report.Unlinked = append(report.Unlinked, rec)
	}

	sort.Slice(report.Unlinked, func(i, j int) bool {
		return report.Unlinked[i].Created.Before(report.Unlinked[j].Created)
	})
	s.log.Info("recovery scan finished",
		zap.Time("since", since),
		zap.Int("scanned", report.Scanned),
		zap.Int("linked", len(report.Linked)),
		zap.Int("unlinked", len(report.Unlinked)),
	)
	return report, nil
}

// RebuildOrder reconstructs the order request from intent metadata alone.
// Truncated item lists are refused.
func RebuildOrder(intent *domain.PaymentIntent) (*domain.OrderRequest, error) {
	req, err := domain.DecodeMetadata(intent.Metadata)
	if err != nil {
		return nil, fmt.Errorf("payment intent %s: %w", intent.ID, err)
	}
	return req, nil
}

type Options struct {
	// Confirm is asked before replaying more than one intent. Nil means yes.
	Confirm func(ids []string) bool
	// Delay separates consecutive replays.
	Delay time.Duration
	// Progress is called after each replay.
	Progress func(Outcome)
}

type Outcome struct {
	PaymentIntentID string
	Result          *domain.OrderResult
	Err             error
}

// Replay processes each intent through the bridge. It stops early only on
// context cancellation or a declined confirmation.
func (s *Service) Replay(ctx context.Context, ids []string, opts Options) ([]Outcome, error) {
	ids = uniqueIDs(ids)
	if len(ids) > 1 && opts.Confirm != nil && !opts.Confirm(ids) {
		return nil, ErrAborted
	}

	outcomes := make([]Outcome, 0, len(ids))
	for i, id := range ids {
		if i > 0 && opts.Delay > 0 {
			if err := s.sleep(ctx, opts.Delay); err != nil {
				return outcomes, err
			}
		}
		out := s.replayOne(ctx, id)
		outcomes = append(outcomes, out)
		if opts.Progress != nil {
			opts.Progress(out)
		}
	}
	return outcomes, nil
}

func (s *Service) replayOne(ctx context.Context, id string) Outcome {
	log := s.log.With(zap.String("payment_intent_id", id))
	out := Outcome{PaymentIntentID: id}

	intent, err := s.intents.Get(ctx, id)
	if err != nil {
		out.Err = err
		log.Warn("intent lookup failed", zap.Error(err))
		return out
	}
	if linked, ok := intent.LinkedOrder(); ok {
		out.Result = &linked
		return out
	}
	if intent.Status != domain.IntentSucceeded {
		out.Err = domain.ErrPaymentNotSucceeded
		return out
	}

	req, err := RebuildOrder(intent)
	if err != nil {
		out.Err = err
		log.Warn("order not rebuildable", zap.Error(err))
		return out
	}
	out.Result, out.Err = s.processor.ProcessIntent(ctx, intent, req)
	if out.Err != nil {
		log.Error("order replay failed", zap.Error(out.Err))
	} else {
		log.Info("order replayed", zap.String("order_id", out.Result.OrderID), zap.Bool("already_linked", out.Result.AlreadyLinked))
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
