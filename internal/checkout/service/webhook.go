package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	obslogger "github.com/smallbiznis/campaignbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

type WebhookParams struct {
	fx.In

	Log        *zap.Logger
	Verifier   domain.EventVerifier
	Service    *Service
	Enqueuer   sideeffectdomain.Enqueuer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// WebhookService replays the bridge for payment_intent.succeeded events so an
// order is still created when the browser never calls process-order.
type WebhookService struct {
	log        *zap.Logger
	verifier   domain.EventVerifier
	svc        *Service
	enqueuer   sideeffectdomain.Enqueuer
	obsMetrics *obsmetrics.Metrics
}

func NewWebhookService(p WebhookParams) *WebhookService {
	return &WebhookService{
		log:        p.Log.Named("checkout.webhook"),
		verifier:   p.Verifier,
		svc:        p.Service,
		enqueuer:   p.Enqueuer,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest verifies and handles one event. A nil error acknowledges it.
func (w *WebhookService) Ingest(ctx context.Context, payload []byte, signature string) error {
	event, err := w.verifier.ConstructEvent(payload, signature)
	if err != nil {
		return err
	}
	w.obsMetrics.RecordPaymentEvent(ctx, "stripe", event.Type)

	log := obslogger.WithContext(ctx, w.log).With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	if event.Intent == nil {
		log.Debug("payment event ignored")
		return nil
	}
	log = obslogger.WithPaymentIntent(log, event.Intent.ID)

	switch event.Type {
	case EventPaymentIntentSucceeded:
		return w.handleSucceeded(ctx, log, event.Intent.ID)
	case EventPaymentIntentFailed:
		log.Info("payment failed", zap.Int64("amount", event.Intent.Amount))
		return nil
	default:
		log.Debug("payment event ignored")
		return nil
	}
}

func (w *WebhookService) handleSucceeded(ctx context.Context, log *zap.Logger, paymentIntentID string) error {
	result, err := w.svc.ProcessOrder(ctx, paymentIntentID, nil)
	switch {
	case err == nil:
		if !result.AlreadyLinked {
			log.Info("order created from payment webhook", zap.String("order_id", result.OrderID))
		}
		return nil
	case errors.Is(err, domain.ErrOrderInProgress):
		// The process-order call owns the claim.
		return nil
	case errors.Is(err, domain.ErrRequiresManualProcessing):
		return nil
	case errors.Is(err, domain.ErrIncompleteMetadata), errors.Is(err, domain.ErrAmountMismatch), errors.Is(err, domain.ErrInvalidOrder):
		log.Error("order cannot be rebuilt from payment intent", zap.Error(err))
		if qerr := w.enqueuer.Enqueue(ctx, sideeffectdomain.KindOperatorAlert, "order_unrebuildable|"+paymentIntentID, sideeffectdomain.OperatorAlert{
			Severity: sideeffectdomain.SeverityCritical,
			Subject:  "Paid order cannot be rebuilt automatically",
			Message:  err.Error(),
			Fields:   map[string]string{"payment_intent_id": paymentIntentID},
		}); qerr != nil {
			log.Error("operator alert not queued", zap.Error(qerr))
		}
		return nil
	default:
		return err
	}
}
