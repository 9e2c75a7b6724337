// Package stripe adapts the payment platform SDK to the checkout ports.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/config"
	stripeapi "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SignatureTolerance bounds the age of a signed webhook payload.
const SignatureTolerance = 5 * time.Minute

var Module = fx.Module("providers.stripe",
	fx.Provide(New),
	fx.Provide(func(c *Client) domain.PaymentIntents { return c }),
	fx.Provide(func(c *Client) domain.EventVerifier { return c }),
)

type Client struct {
	api           *client.API
	webhookSecret string
	log           *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	c := &Client{
		webhookSecret: strings.TrimSpace(cfg.Stripe.WebhookSecret),
		log:           log.Named("providers.stripe"),
	}
	if key := strings.TrimSpace(cfg.Stripe.SecretKey); key != "" {
		c.api = &client.API{}
		c.api.Init(key, nil)
	}
	return c
}

func (c *Client) New(ctx context.Context, in domain.NewIntentParams) (*domain.PaymentIntent, error) {
	if c.api == nil {
		return nil, domain.ErrNotConfigured
	}
	params := &stripeapi.PaymentIntentParams{
		Params:   stripeapi.Params{Context: ctx},
		Amount:   stripeapi.Int64(in.Amount),
		Currency: stripeapi.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripeapi.String(in.ReceiptEmail)
	}
	if in.Description != "" {
		params.Description = stripeapi.String(in.Description)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return toIntent(pi), nil
}

func (c *Client) Get(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	if c.api == nil {
		return nil, domain.ErrNotConfigured
	}
	pi, err := c.api.PaymentIntents.Get(id, &stripeapi.PaymentIntentParams{
		Params: stripeapi.Params{Context: ctx},
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toIntent(pi), nil
}

// Update changes the amount and merges metadata. An empty value removes the key.
func (c *Client) Update(ctx context.Context, id string, in domain.UpdateIntentParams) (*domain.PaymentIntent, error) {
	if c.api == nil {
		return nil, domain.ErrNotConfigured
	}
	params := &stripeapi.PaymentIntentParams{
		Params: stripeapi.Params{Context: ctx},
	}
	if in.Amount != nil {
		params.Amount = stripeapi.Int64(*in.Amount)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.Update(id, params)
	if err != nil {
		return nil, mapError(err)
	}
	return toIntent(pi), nil
}

func (c *Client) List(ctx context.Context, since time.Time) ([]domain.PaymentIntent, error) {
	if c.api == nil {
		return nil, domain.ErrNotConfigured
	}
	params := &stripeapi.PaymentIntentListParams{
		ListParams: stripeapi.ListParams{Context: ctx},
		CreatedRange: &stripeapi.RangeQueryParams{
			GreaterThanOrEqual: since.Unix(),
		},
	}
	params.Limit = stripeapi.Int64(100)

	var out []domain.PaymentIntent
	iter := c.api.PaymentIntents.List(params)
	for iter.Next() {
		out = append(out, *toIntent(iter.PaymentIntent()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// Only payment_intent.* events carry an Intent.
func (c *Client) ConstructEvent(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	if c.webhookSecret == "" {
		return nil, domain.ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                SignatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.log.Warn("payment webhook rejected", zap.Error(err))
		return nil, domain.ErrInvalidSignature
	}

	out := &domain.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && event.Data != nil {
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, err
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}

func toIntent(pi *stripeapi.PaymentIntent) *domain.PaymentIntent {
	if pi == nil {
		return nil
	}
	meta := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		meta[k] = v
	}
	return &domain.PaymentIntent{
		ID:           pi.ID,
		Status:       domain.IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		Created:      time.Unix(pi.Created, 0).UTC(),
		Metadata:     meta,
	}
}

// APIError keeps the platform message for logs; it never reaches shoppers unsanitized.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func mapError(err error) error {
	var stripeErr *stripeapi.Error
	if !errors.As(err, &stripeErr) {
		return err
	}
	if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripeapi.ErrorCodeResourceMissing {
		return domain.ErrIntentNotFound
	}
	return &APIError{
		StatusCode: stripeErr.HTTPStatusCode,
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
	}
}
