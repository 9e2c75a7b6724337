package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	obslogger "github.com/smallbiznis/campaignbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/campaignbridge/internal/observability/metrics"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/smallbiznis/campaignbridge/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultClaimStale is how long a pending link blocks other attempts.
	DefaultClaimStale = 2 * time.Minute

	maxStoredError = 480
)

const (
	bridgeCreated        = "created"
	bridgeAlreadyLinked  = "already_linked"
	bridgeInProgress     = "in_progress"
	bridgeManual         = "manual"
	bridgeLedgerError    = "ledger_error"
	bridgeIncompleteData = "incomplete_metadata"
)

// OrderCreator creates paid orders on the commerce platform.
type OrderCreator interface {
	CreateOrder(ctx context.Context, input shopify.OrderInput) (*shopify.CreatedOrder, error)
}

type BridgeParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.LinkRepository
	Intents    domain.PaymentIntents
	Orders     OrderCreator
	Enqueuer   sideeffectdomain.Enqueuer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Bridge turns a succeeded payment intent into exactly one commerce order.
type Bridge struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.LinkRepository
	intents    domain.PaymentIntents
	orders     OrderCreator
	enqueuer   sideeffectdomain.Enqueuer
	obsMetrics *obsmetrics.Metrics
	claimStale time.Duration
}

func NewBridge(p BridgeParams) *Bridge {
	return &Bridge{
		db:         p.DB,
		log:        p.Log.Named("checkout.bridge"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		intents:    p.Intents,
		orders:     p.Orders,
		enqueuer:   p.Enqueuer,
		obsMetrics: p.ObsMetrics,
		claimStale: DefaultClaimStale,
	}
}

// Run creates the order for intent at most once. order may be nil, in which
// case it is rebuilt from the intent metadata.
func (b *Bridge) Run(ctx context.Context, intent *domain.PaymentIntent, order *domain.OrderRequest) (*domain.OrderResult, error) {
	if intent == nil || strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrIntentNotFound
	}
	log := obslogger.WithPaymentIntent(obslogger.WithContext(ctx, b.log), intent.ID)

	if linked, ok := intent.LinkedOrder(); ok {
		b.obsMetrics.RecordBridgeOutcome(ctx, bridgeAlreadyLinked)
		return &linked, nil
	}
	if intent.Status != domain.IntentSucceeded {
		return nil, domain.ErrPaymentNotSucceeded
	}

	if order == nil {
		rebuilt, err := domain.DecodeMetadata(intent.Metadata)
		if err != nil {
			if linked, lerr := b.linkedFromLedger(ctx, intent.ID); lerr == nil && linked != nil {
				b.obsMetrics.RecordBridgeOutcome(ctx, bridgeAlreadyLinked)
				return linked, nil
			}
			b.obsMetrics.RecordBridgeOutcome(ctx, bridgeIncompleteData)
			return nil, err
		}
		order = rebuilt
	}
	totals, err := order.Compute()
	if err != nil {
		return nil, err
	}
	if err := order.ValidateVariants(); err != nil {
		return nil, err
	}

	now := b.clock.Now().UTC()
	link := &domain.OrderLink{
		ID:              b.genID.Generate(),
		PaymentIntentID: intent.ID,
		Status:          domain.LinkPending,
		Attempts:        1,
		ClaimedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	claimed, err := b.repo.Claim(ctx, b.db, link)
	if err != nil {
		b.obsMetrics.RecordBridgeOutcome(ctx, bridgeLedgerError)
		return nil, err
	}
	if !claimed {
		existing, err := b.repo.FindByIntent(ctx, b.db, intent.ID)
		if err != nil {
			b.obsMetrics.RecordBridgeOutcome(ctx, bridgeLedgerError)
			return nil, err
		}
		if existing == nil {
			b.obsMetrics.RecordBridgeOutcome(ctx, bridgeInProgress)
			return nil, domain.ErrOrderInProgress
		}
		if existing.Status == domain.LinkLinked {
			result := resultFromLink(existing)
			b.mirrorLink(ctx, log, intent.ID, result, now)
			b.obsMetrics.RecordBridgeOutcome(ctx, bridgeAlreadyLinked)
			return &result, nil
		}
		won, err := b.repo.TakeOver(ctx, b.db, intent.ID, existing.Attempts, now.Add(-b.claimStale), now)
		if err != nil {
			b.obsMetrics.RecordBridgeOutcome(ctx, bridgeLedgerError)
			return nil, err
		}
		if !won {
			b.obsMetrics.RecordBridgeOutcome(ctx, bridgeInProgress)
			return nil, domain.ErrOrderInProgress
		}
		link.Attempts = existing.Attempts + 1
		log.Info("taking over order link", zap.String("previous_status", string(existing.Status)), zap.Int("attempt", link.Attempts))
	}

	created, err := b.orders.CreateOrder(ctx, buildOrderInput(intent, order, totals))
	if err != nil {
		return nil, b.fail(ctx, log, intent, link.Attempts, err)
	}
	result := domain.OrderResult{
		PaymentIntentID: intent.ID,
		OrderID:         created.IDString(),
		OrderName:       created.Name,
	}
	log.Info("order created", zap.String("order_id", result.OrderID), zap.String("order_name", result.OrderName))

	if err := b.enqueuer.Enqueue(ctx, sideeffectdomain.KindOrderConfirmationEmail, intent.ID, confirmationPayload(intent, order, totals, result)); err != nil {
		log.Warn("confirmation email not queued", zap.Error(err))
	}

	done := b.clock.Now().UTC()
	if err := b.repo.MarkLinked(ctx, b.db, intent.ID, result.OrderID, result.OrderName, done); err != nil {
		log.Error("order link not recorded", zap.String("order_id", result.OrderID), zap.Error(err))
		b.alert(ctx, log, "order_link_unrecorded|"+intent.ID, sideeffectdomain.OperatorAlert{
			Severity: sideeffectdomain.SeverityCritical,
			Subject:  "Order created but link not recorded",
			Message:  err.Error(),
			Fields:   map[string]string{"payment_intent_id": intent.ID, "order_id": result.OrderID},
		})
	}
	b.mirrorLink(ctx, log, intent.ID, result, done)

	b.obsMetrics.RecordBridgeOutcome(ctx, bridgeCreated)
	return &result, nil
}

func (b *Bridge) linkedFromLedger(ctx context.Context, paymentIntentID string) (*domain.OrderResult, error) {
	existing, err := b.repo.FindByIntent(ctx, b.db, paymentIntentID)
	if err != nil || existing == nil || existing.Status != domain.LinkLinked {
		return nil, err
	}
	result := resultFromLink(existing)
	return &result, nil
}

// mirrorLink writes the link into the intent metadata for operators and recovery.
func (b *Bridge) mirrorLink(ctx context.Context, log *zap.Logger, paymentIntentID string, result domain.OrderResult, at time.Time) {
	_, err := b.intents.Update(ctx, paymentIntentID, domain.UpdateIntentParams{
		Metadata: map[string]string{
			domain.MetaShopifyOrderID:      result.OrderID,
			domain.MetaShopifyOrderName:    result.OrderName,
			domain.MetaShopifyOrderCreated: at.Format(time.RFC3339),
			domain.MetaShopifyOrderFailed:  "",
			domain.MetaShopifyOrderError:   "",
			domain.MetaShopifyOrderFailAt:  "",
		},
	})
	if err != nil {
		log.Warn("order link not mirrored to payment intent", zap.Error(err))
	}
}

func (b *Bridge) fail(ctx context.Context, log *zap.Logger, intent *domain.PaymentIntent, attempt int, cause error) error {
	now := b.clock.Now().UTC()
	reason := truncateError(cause.Error())
	log.Error("order creation failed", zap.Int("attempt", attempt), zap.Error(cause))

	if err := b.repo.MarkFailed(ctx, b.db, intent.ID, reason, now); err != nil {
		log.Error("order link failure not recorded", zap.Error(err))
	}
	_, err := b.intents.Update(ctx, intent.ID, domain.UpdateIntentParams{
		Metadata: map[string]string{
			domain.MetaShopifyOrderFailed: "true",
			domain.MetaShopifyOrderError:  reason,
			domain.MetaShopifyOrderFailAt: now.Format(time.RFC3339),
		},
	})
	if err != nil {
		log.Error("order failure not recorded on payment intent", zap.Error(err))
	}
	b.alert(ctx, log, FailureAlertKey(intent.ID, attempt), sideeffectdomain.OperatorAlert{
		Severity: sideeffectdomain.SeverityCritical,
		Subject:  "Paid order requires manual processing",
		Message:  reason,
		Fields: map[string]string{
			"payment_intent_id": intent.ID,
			"amount":            money.FormatCents(intent.Amount),
			"currency":          strings.ToUpper(intent.Currency),
			"attempt":           strconv.Itoa(attempt),
		},
	})

	b.obsMetrics.RecordBridgeOutcome(ctx, bridgeManual)
	return fmt.Errorf("%w: %w", domain.ErrRequiresManualProcessing, cause)
}

func (b *Bridge) alert(ctx context.Context, log *zap.Logger, dedupeKey string, alert sideeffectdomain.OperatorAlert) {
	if err := b.enqueuer.Enqueue(ctx, sideeffectdomain.KindOperatorAlert, dedupeKey, alert); err != nil {
		log.Error("operator alert not queued", zap.String("subject", alert.Subject), zap.Error(err))
	}
}

// FailureAlertKey dedupes alerts to one per failed attempt.
func FailureAlertKey(paymentIntentID string, attempt int) string {
	return "order_failed|" + paymentIntentID + "|" + strconv.Itoa(attempt)
}

func resultFromLink(link *domain.OrderLink) domain.OrderResult {
	result := domain.OrderResult{PaymentIntentID: link.PaymentIntentID, AlreadyLinked: true}
	if link.ShopifyOrderID != nil {
		result.OrderID = *link.ShopifyOrderID
	}
	if link.ShopifyOrderName != nil {
		result.OrderName = *link.ShopifyOrderName
	}
	return result
}

func buildOrderInput(intent *domain.PaymentIntent, order *domain.OrderRequest, totals domain.Totals) shopify.OrderInput {
	customer := order.Customer
	input := shopify.OrderInput{
		Email:           strings.TrimSpace(customer.Email),
		Phone:           strings.TrimSpace(customer.Phone),
		Currency:        strings.ToUpper(intent.Currency),
		FinancialStatus: "paid",
		Customer: &shopify.OrderCustomer{
			Email:     strings.TrimSpace(customer.Email),
			FirstName: strings.TrimSpace(customer.FirstName),
			LastName:  strings.TrimSpace(customer.LastName),
			Phone:     strings.TrimSpace(customer.Phone),
		},
		Transactions: []shopify.OrderTransaction{{
			Kind:          "sale",
			Status:        "success",
			Amount:        money.FormatCents(intent.Amount),
			Gateway:       "stripe",
			Authorization: intent.ID,
		}},
		Tags:            "campaignbridge",
		NoteAttributes:  []shopify.NoteAttribute{{Name: "payment_intent_id", Value: intent.ID}},
		SendReceipt:     false,
		InventoryPolicy: "decrement_obeying_policy",
	}

	for _, line := range totals.Lines {
		variantID, _ := domain.ParseVariantID(line.VariantID)
		input.LineItems = append(input.LineItems, shopify.OrderLineItem{
			VariantID: variantID,
			Quantity:  line.Quantity,
			Price:     money.FormatCents(line.Price),
		})
	}
	if totals.Tip > 0 {
		input.LineItems = append(input.LineItems, shopify.OrderLineItem{
			Title:    "Tip",
			Quantity: 1,
			Price:    money.FormatCents(totals.Tip),
		})
	}

	if method := strings.TrimSpace(order.DeliveryMethod); method != "" {
		input.ShippingLines = []shopify.OrderShippingLine{{
			Title: deliveryTitle(method),
			Price: money.FormatCents(totals.Delivery),
			Code:  method,
		}}
	}
	if addr := order.ShippingAddress; addr != nil {
		shipping := &shopify.OrderAddress{
			FirstName: strings.TrimSpace(customer.FirstName),
			LastName:  strings.TrimSpace(customer.LastName),
			Address1:  strings.TrimSpace(addr.Address1),
			Address2:  strings.TrimSpace(addr.Address2),
			City:      strings.TrimSpace(addr.City),
			Province:  strings.TrimSpace(addr.Province),
			Zip:       strings.TrimSpace(addr.Zip),
			Country:   strings.TrimSpace(addr.Country),
			Phone:     strings.TrimSpace(customer.Phone),
		}
		input.ShippingAddress = shipping
		input.BillingAddress = shipping
	}
	return input
}

func deliveryTitle(method string) string {
	switch strings.ToLower(method) {
	case "shipping":
		return "Shipping"
	case "pickup":
		return "Local pickup"
	case "delivery":
		return "Local delivery"
	default:
		return method
	}
}

func confirmationPayload(intent *domain.PaymentIntent, order *domain.OrderRequest, totals domain.Totals, result domain.OrderResult) sideeffectdomain.OrderConfirmation {
	payload := sideeffectdomain.OrderConfirmation{
		PaymentIntentID: intent.ID,
		OrderID:         result.OrderID,
		OrderName:       result.OrderName,
		Email:           strings.TrimSpace(order.Customer.Email),
		FirstName:       strings.TrimSpace(order.Customer.FirstName),
		Currency:        strings.ToUpper(intent.Currency),
		Delivery:        deliveryTitle(strings.TrimSpace(order.DeliveryMethod)),
		DeliveryPrice:   money.FormatCents(totals.Delivery),
		Tip:             money.FormatCents(totals.Tip),
		Total:           money.FormatCents(intent.Amount),
	}
	for i, line := range totals.Lines {
		title := line.Title
		if title == "" {
			title = "Item " + strconv.Itoa(i+1)
		}
		payload.Items = append(payload.Items, sideeffectdomain.OrderConfirmationItem{
			Title:    title,
			Quantity: line.Quantity,
			Price:    money.FormatCents(line.Price),
		})
	}
	return payload
}

func truncateError(msg string) string {
	return domain.TruncateUTF8(strings.TrimSpace(msg), maxStoredError)
}
