package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/pkg/money"
)

// AmountTolerance is the largest difference, in cents, accepted between a
// client-declared total and the recomputed one.
const AmountTolerance int64 = 1

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentCanceled              IntentStatus = "canceled"
	IntentSucceeded             IntentStatus = "succeeded"
)

// PaymentIntent is the provider-neutral view of a payment intent.
type PaymentIntent struct {
	ID           string
	Status       IntentStatus
	Amount       int64
	Currency     string
	ClientSecret string
	Created      time.Time
	Metadata     map[string]string
}

// Meta returns a trimmed metadata value.
func (p *PaymentIntent) Meta(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(p.Metadata[key])
}

// LinkedOrder reports the order recorded in metadata, if any.
func (p *PaymentIntent) LinkedOrder() (OrderResult, bool) {
	id := p.Meta(MetaShopifyOrderID)
	if id == "" {
		return OrderResult{}, false
	}
	return OrderResult{
		PaymentIntentID: p.ID,
		OrderID:         id,
		OrderName:       p.Meta(MetaShopifyOrderName),
		AlreadyLinked:   true,
	}, true
}

type NewIntentParams struct {
	Amount       int64
	Currency     string
	ReceiptEmail string
	Description  string
	Metadata     map[string]string
}

type UpdateIntentParams struct {
	Amount   *int64
	Metadata map[string]string
}

type OrderItem struct {
	VariantID string  `json:"variantId"`
	Title     string  `json:"title,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

type Address struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	Province string `json:"province,omitempty"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

// OrderRequest is the order-construction data sent by the checkout page.
type OrderRequest struct {
	Items           []OrderItem `json:"items"`
	Customer        Customer    `json:"customer"`
	ShippingAddress *Address    `json:"shippingAddress,omitempty"`
	DeliveryMethod  string      `json:"deliveryMethod"`
	DeliveryPrice   float64     `json:"deliveryPrice"`
	Tip             float64     `json:"tip"`
	Total           float64     `json:"total"`
}

// LineCents is one item in minor units.
type LineCents struct {
	VariantID string
	Title     string
	Quantity  int
	Price     int64
}

// Totals is an OrderRequest recomputed in cents.
type Totals struct {
	Lines    []LineCents
	Delivery int64
	Tip      int64
	Total    int64
}

// Compute validates quantities and amounts and recomputes the total as
// sum(qty x price) + delivery + tip. Variant ids are checked separately by
// ValidateVariants.
func (r OrderRequest) Compute() (Totals, error) {
	if len(r.Items) == 0 {
		return Totals{}, invalid("at least one item is required")
	}
	if strings.TrimSpace(r.Customer.Email) == "" || !strings.Contains(r.Customer.Email, "@") {
		return Totals{}, invalid("a valid email is required")
	}

	var totals Totals
	for i, item := range r.Items {
		if item.Quantity <= 0 {
			return Totals{}, invalid("item %d has an invalid quantity", i+1)
		}
		price, err := money.FromFloat(item.Price)
		if err != nil || price < 0 {
			return Totals{}, invalid("item %d has an invalid price", i+1)
		}
		totals.Lines = append(totals.Lines, LineCents{
			VariantID: strings.TrimSpace(item.VariantID),
			Title:     strings.TrimSpace(item.Title),
			Quantity:  item.Quantity,
			Price:     price,
		})
		totals.Total += price * int64(item.Quantity)
	}

	delivery, err := money.FromFloat(r.DeliveryPrice)
	if err != nil || delivery < 0 {
		return Totals{}, invalid("invalid delivery price")
	}
	tip, err := money.FromFloat(r.Tip)
	if err != nil || tip < 0 {
		return Totals{}, invalid("invalid tip")
	}
	totals.Delivery = delivery
	totals.Tip = tip
	totals.Total += delivery + tip

	if totals.Total <= 0 {
		return Totals{}, invalid("order total must be positive")
	}
	return totals, nil
}

// ValidateVariants requires every item to reference a commerce variant.
func (r OrderRequest) ValidateVariants() error {
	for i, item := range r.Items {
		if _, err := ParseVariantID(item.VariantID); err != nil {
			return invalid("item %d has an invalid variant", i+1)
		}
	}
	return nil
}

// CheckDeclared compares the recomputed total with the client-declared one.
func (r OrderRequest) CheckDeclared(t Totals) error {
	declared, err := money.FromFloat(r.Total)
	if err != nil {
		return invalid("invalid total")
	}
	return CheckAmount(declared, t.Total)
}

// CheckAmount fails with ErrAmountMismatch when the two amounts differ by
// more than AmountTolerance.
func CheckAmount(declared, computed int64) error {
	diff := declared - computed
	if diff < 0 {
		diff = -diff
	}
	if diff > AmountTolerance {
		return &AmountMismatchError{Declared: declared, Computed: computed}
	}
	return nil
}

// ParseVariantID accepts a numeric id or a ProductVariant GID.
func ParseVariantID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidOrder
	}
	return id, nil
}

type LinkStatus string

const (
	LinkPending LinkStatus = "pending"
	LinkLinked  LinkStatus = "linked"
	LinkFailed  LinkStatus = "failed"
)

// OrderLink is the durable record tying a payment intent to at most one order.
type OrderLink struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	PaymentIntentID  string       `json:"payment_intent_id" gorm:"not null;uniqueIndex"`
	Status           LinkStatus   `json:"status" gorm:"not null"`
	ShopifyOrderID   *string      `json:"shopify_order_id,omitempty"`
	ShopifyOrderName *string      `json:"shopify_order_name,omitempty"`
	Attempts         int          `json:"attempts" gorm:"not null"`
	LastError        *string      `json:"last_error,omitempty"`
	ClaimedAt        time.Time    `json:"claimed_at" gorm:"not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (OrderLink) TableName() string { return "payment_order_links" }

// OrderResult is what the bridge reports back to callers.
type OrderResult struct {
	PaymentIntentID string `json:"paymentIntentId"`
	OrderID         string `json:"orderId"`
	OrderName       string `json:"orderName"`
	AlreadyLinked   bool   `json:"alreadyLinked"`
}
