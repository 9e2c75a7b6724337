package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/config"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	"github.com/smallbiznis/campaignbridge/internal/ratelimit"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const productGIDPrefix = "gid://shopify/Product/"

const (
	typeInteger = "number_integer"
	typeDecimal = "number_decimal"
	typeJSON    = "json"
)

// ProductLocker serializes progress writes per product.
type ProductLocker interface {
	Acquire(ctx context.Context, productGID string, ttl time.Duration) (func(context.Context) error, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Store      domain.MetafieldStore
	Enqueuer   sideeffectdomain.Enqueuer
	Config     *config.CampaignConfigHolder
	Lock       ProductLocker       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	store      domain.MetafieldStore
	enqueuer   sideeffectdomain.Enqueuer
	cfg        *config.CampaignConfigHolder
	lock       ProductLocker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	lock := p.Lock
	if lock == nil {
		lock = ratelimit.NewProductLock(nil)
	}
	return &Service{
		log:        p.Log.Named("campaign.progress"),
		store:      p.Store,
		enqueuer:   p.Enqueuer,
		cfg:        p.Config,
		lock:       lock,
		obsMetrics: p.ObsMetrics,
	}
}

// FeedAppend is the payload of a backer_feed.append task.
type FeedAppend struct {
	ProductGID string             `json:"product_gid"`
	Entry      domain.BackerEntry `json:"entry"`
}

// Apply adds delta to the product's stored progress in one metafieldsSet call
// and queues the backer feed entry, if any.
func (s *Service) Apply(ctx context.Context, productGID string, delta domain.Delta, entry *domain.BackerEntry) (domain.Progress, error) {
	if !validProductGID(productGID) {
		return domain.Progress{}, domain.ErrInvalidProduct
	}
	cfg := s.cfg.Get()

	var next domain.Progress
	err := s.withLock(ctx, productGID, cfg.LockTTL, func() error {
		current, err := s.read(ctx, productGID, cfg.Namespace)
		if err != nil {
			return err
		}
		next = current.Add(delta)
		if delta.IsZero() {
			return nil
		}
		return s.write(ctx, productGID, cfg.Namespace, next)
	})
	if err != nil {
		s.obsMetrics.RecordProgressUpdate(ctx, "delta", "error")
		return domain.Progress{}, err
	}
	s.obsMetrics.RecordProgressUpdate(ctx, "delta", "ok")

	s.log.Info("campaign progress applied",
		zap.String("product_gid", productGID),
		zap.Int64("quantity_delta", delta.CurrentQuantity),
		zap.Int64("backer_delta", delta.BackerCount),
		zap.Int64("raised_delta_cents", delta.TotalRaisedCents),
		zap.Int64("current_quantity", next.CurrentQuantity),
		zap.Int64("backer_count", next.BackerCount),
		zap.Int64("total_raised_cents", next.TotalRaisedCents),
	)

	if entry != nil {
		s.enqueueFeed(ctx, productGID, *entry)
	}
	return next, nil
}

// SetProgress overwrites the stored progress with absolute values.
func (s *Service) SetProgress(ctx context.Context, productGID string, progress domain.Progress) (domain.Progress, error) {
	if !validProductGID(productGID) {
		return domain.Progress{}, domain.ErrInvalidProduct
	}
	if progress.CurrentQuantity < 0 || progress.BackerCount < 0 || progress.TotalRaisedCents < 0 {
		return domain.Progress{}, domain.ErrInvalidProgress
	}
	cfg := s.cfg.Get()

	err := s.withLock(ctx, productGID, cfg.LockTTL, func() error {
		if _, err := s.store.ProductMetafields(ctx, productGID, cfg.Namespace); err != nil {
			return err
		}
		return s.write(ctx, productGID, cfg.Namespace, progress)
	})
	if err != nil {
		s.obsMetrics.RecordProgressUpdate(ctx, "override", "error")
		return domain.Progress{}, err
	}
	s.obsMetrics.RecordProgressUpdate(ctx, "override", "ok")
	s.log.Warn("campaign progress overridden",
		zap.String("product_gid", productGID),
		zap.Int64("current_quantity", progress.CurrentQuantity),
		zap.Int64("backer_count", progress.BackerCount),
		zap.Int64("total_raised_cents", progress.TotalRaisedCents),
	)
	return progress, nil
}

func (s *Service) Progress(ctx context.Context, productGID string) (domain.Progress, error) {
	if !validProductGID(productGID) {
		return domain.Progress{}, domain.ErrInvalidProduct
	}
	return s.read(ctx, productGID, s.cfg.Get().Namespace)
}

func (s *Service) enqueueFeed(ctx context.Context, productGID string, entry domain.BackerEntry) {
	dedupeKey := entry.OrderRef + "|" + productGID
	err := s.enqueuer.Enqueue(ctx, sideeffectdomain.KindBackerFeedAppend, dedupeKey, FeedAppend{
		ProductGID: productGID,
		Entry:      entry,
	})
	if err != nil {
		s.obsMetrics.RecordFeedAppend(ctx, "enqueue_failed")
		s.log.Error("failed to enqueue backer feed append",
			zap.String("product_gid", productGID),
			zap.String("order_ref", entry.OrderRef),
			zap.Error(err),
		)
	}
}

func (s *Service) withLock(ctx context.Context, productGID string, ttl time.Duration, fn func() error) error {
	release, err := s.lock.Acquire(ctx, productGID, ttl)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockTimeout) {
			return fmt.Errorf("%w: %s", domain.ErrProgressLocked, productGID)
		}
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release product lock", zap.String("product_gid", productGID), zap.Error(err))
		}
	}()
	return fn()
}

func (s *Service) read(ctx context.Context, productGID, namespace string) (domain.Progress, error) {
	fields, err := s.store.ProductMetafields(ctx, productGID, namespace)
	if err != nil {
		return domain.Progress{}, err
	}
	return ParseProgress(fields)
}

func (s *Service) write(ctx context.Context, productGID, namespace string, p domain.Progress) error {
	return s.store.SetMetafields(ctx, []domain.MetafieldInput{
		{OwnerID: productGID, Namespace: namespace, Key: domain.KeyCurrentQuantity, Type: typeInteger, Value: strconv.FormatInt(p.CurrentQuantity, 10)},
		{OwnerID: productGID, Namespace: namespace, Key: domain.KeyBackerCount, Type: typeInteger, Value: strconv.FormatInt(p.BackerCount, 10)},
		{OwnerID: productGID, Namespace: namespace, Key: domain.KeyTotalRaised, Type: typeDecimal, Value: money.FormatCents(p.TotalRaisedCents)},
	})
}

// ParseProgress reads stored metafield values. Missing fields count as zero;
// malformed or negative ones are an error so a bad value is never silently reset.
func ParseProgress(fields map[string]string) (domain.Progress, error) {
	var p domain.Progress
	var err error
	if p.CurrentQuantity, err = parseInt(fields, domain.KeyCurrentQuantity); err != nil {
		return domain.Progress{}, err
	}
	if p.BackerCount, err = parseInt(fields, domain.KeyBackerCount); err != nil {
		return domain.Progress{}, err
	}
	if raw := strings.TrimSpace(fields[domain.KeyTotalRaised]); raw != "" {
		cents, err := money.ParseCents(raw)
		if err != nil {
			return domain.Progress{}, fmt.Errorf("%w: %s=%q", domain.ErrInvalidProgress, domain.KeyTotalRaised, raw)
		}
		if cents < 0 {
			return domain.Progress{}, fmt.Errorf("%w: %s=%q is negative", domain.ErrInvalidProgress, domain.KeyTotalRaised, raw)
		}
		p.TotalRaisedCents = cents
	}
	return p, nil
}

func parseInt(fields map[string]string, key string) (int64, error) {
	raw := strings.TrimSpace(fields[key])
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidProgress, key, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s=%q is negative", domain.ErrInvalidProgress, key, raw)
	}
	return v, nil
}

func validProductGID(gid string) bool {
	id, ok := strings.CutPrefix(gid, productGIDPrefix)
	if !ok || id == "" {
		return false
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}
