package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/config"
	obslogger "github.com/smallbiznis/campaignbridge/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Repo    domain.LinkRepository
	Intents domain.PaymentIntents
	Bridge  *Bridge
}

// Service backs the checkout payment endpoints.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	currency string
	repo     domain.LinkRepository
	intents  domain.PaymentIntents
	bridge   *Bridge
}

type IntentResult struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type Confirmation struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
	OrderID         string `json:"orderId,omitempty"`
	OrderName       string `json:"orderName,omitempty"`
}

func NewService(p Params) *Service {
	currency := strings.ToLower(strings.TrimSpace(p.Config.Stripe.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		currency: currency,
		repo:     p.Repo,
		intents:  p.Intents,
		bridge:   p.Bridge,
	}
}

func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.OrderRequest) (*IntentResult, error) {
	totals, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	intent, err := s.intents.New(ctx, domain.NewIntentParams{
		Amount:       totals.Total,
		Currency:     s.currency,
		ReceiptEmail: strings.TrimSpace(req.Customer.Email),
		Description:  "Campaign order",
		Metadata:     domain.EncodeMetadata(req, totals),
	})
	if err != nil {
		return nil, err
	}
	obslogger.WithPaymentIntent(obslogger.WithContext(ctx, s.log), intent.ID).
		Info("payment intent created", zap.Int64("amount", intent.Amount))

	return &IntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	}, nil
}

func (s *Service) UpdatePaymentIntent(ctx context.Context, id string, req domain.OrderRequest) (*IntentResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrIntentNotFound
	}
	totals, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	current, err := s.intents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.IntentSucceeded || current.Status == domain.IntentCanceled ||
		current.Status == domain.IntentProcessing {
		return nil, domain.ErrIntentNotUpdatable
	}

	amount := totals.Total
	meta := domain.EncodeMetadata(req, totals)
	// Keys absent from the new order are cleared.
	for key := range current.Metadata {
		if _, ok := meta[key]; !ok && isOrderKey(key) {
			meta[key] = ""
		}
	}
	updated, err := s.intents.Update(ctx, id, domain.UpdateIntentParams{Amount: &amount, Metadata: meta})
	if err != nil {
		return nil, err
	}
	return &IntentResult{
		PaymentIntentID: updated.ID,
		ClientSecret:    updated.ClientSecret,
		Amount:          updated.Amount,
		Currency:        updated.Currency,
	}, nil
}

func (s *Service) ConfirmPayment(ctx context.Context, id string) (*Confirmation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrIntentNotFound
	}
	intent, err := s.intents.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &Confirmation{PaymentIntentID: intent.ID, Status: string(intent.Status)}
	if linked, ok := intent.LinkedOrder(); ok {
		out.OrderID, out.OrderName = linked.OrderID, linked.OrderName
		return out, nil
	}
	link, err := s.repo.FindByIntent(ctx, s.db, intent.ID)
	if err != nil {
		return nil, err
	}
	if link != nil && link.Status == domain.LinkLinked {
		result := resultFromLink(link)
		out.OrderID, out.OrderName = result.OrderID, result.OrderName
	}
	return out, nil
}

// ProcessOrder runs the bridge for a succeeded intent. A nil req rebuilds the
// order from the intent metadata.
func (s *Service) ProcessOrder(ctx context.Context, id string, req *domain.OrderRequest) (*domain.OrderResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrIntentNotFound
	}
	intent, err := s.intents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ProcessIntent(ctx, intent, req)
}

// ProcessIntent is ProcessOrder for an intent already fetched.
func (s *Service) ProcessIntent(ctx context.Context, intent *domain.PaymentIntent, req *domain.OrderRequest) (*domain.OrderResult, error) {
	if linked, ok := intent.LinkedOrder(); ok {
		return &linked, nil
	}
	if intent.Status != domain.IntentSucceeded {
		return nil, domain.ErrPaymentNotSucceeded
	}
	if req != nil {
		totals, err := req.Compute()
		if err != nil {
			return nil, err
		}
		if err := domain.CheckAmount(intent.Amount, totals.Total); err != nil {
			return nil, err
		}
	} else if rebuilt, err := domain.DecodeMetadata(intent.Metadata); err == nil {
		totals, err := rebuilt.Compute()
		if err != nil {
			return nil, err
		}
		if err := domain.CheckAmount(intent.Amount, totals.Total); err != nil {
			return nil, err
		}
		req = rebuilt
	}
	return s.bridge.Run(ctx, intent, req)
}

func (s *Service) validate(req domain.OrderRequest) (domain.Totals, error) {
	totals, err := req.Compute()
	if err != nil {
		return domain.Totals{}, err
	}
	if err := req.CheckDeclared(totals); err != nil {
		var mismatch *domain.AmountMismatchError
		if errors.As(err, &mismatch) {
			s.log.Warn("declared total mismatch",
				zap.Int64("declared", mismatch.Declared),
				zap.Int64("computed", mismatch.Computed))
		}
		return domain.Totals{}, err
	}
	if err := req.ValidateVariants(); err != nil {
		return domain.Totals{}, err
	}
	return totals, nil
}

func isOrderKey(key string) bool {
	switch key {
	case domain.MetaItemsTruncated, domain.MetaCustomerPhone, domain.MetaTip,
		domain.MetaShipAddress1, domain.MetaShipAddress2, domain.MetaShipCity,
		domain.MetaShipProvince, domain.MetaShipZip, domain.MetaShipCountry:
		return true
	}
	return false
}
