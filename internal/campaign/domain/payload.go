package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/pkg/money"
)

// Amount is a money value decoded exactly from either "6.00" or 6.00.
type Amount struct {
	Cents int64
	Set   bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	text := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
	}
	if strings.TrimSpace(text) == "" {
		*a = Amount{}
		return nil
	}
	cents, err := money.ParseCents(text)
	if err != nil {
		return err
	}
	*a = Amount{Cents: cents, Set: true}
	return nil
}

type Address struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
}

type Customer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LineItem struct {
	ID        int64  `json:"id"`
	ProductID *int64 `json:"product_id"`
	VariantID *int64 `json:"variant_id"`
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	Price     Amount `json:"price"`
}

type Order struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Currency        string     `json:"currency"`
	CreatedAt       time.Time  `json:"created_at"`
	CancelledAt     *time.Time `json:"cancelled_at"`
	TotalPrice      Amount     `json:"total_price"`
	Customer        *Customer  `json:"customer"`
	ShippingAddress *Address   `json:"shipping_address"`
	BillingAddress  *Address   `json:"billing_address"`
	LineItems       []LineItem `json:"line_items"`
}

func (o *Order) Cancelled() bool {
	return o != nil && o.CancelledAt != nil && !o.CancelledAt.IsZero()
}

// BackerName prefers the customer record, then the billing name.
func (o *Order) BackerName() string {
	if o == nil {
		return ""
	}
	if o.Customer != nil {
		if name := strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName); name != "" {
			return name
		}
	}
	if o.BillingAddress != nil {
		if name := strings.TrimSpace(o.BillingAddress.FirstName + " " + o.BillingAddress.LastName); name != "" {
			return name
		}
	}
	return "Anonymous"
}

func (o *Order) ContactEmail() string {
	if o == nil {
		return ""
	}
	if email := strings.TrimSpace(o.Email); email != "" {
		return email
	}
	if o.Customer != nil {
		return strings.TrimSpace(o.Customer.Email)
	}
	return ""
}

type RefundLineItem struct {
	ID         int64    `json:"id"`
	LineItemID int64    `json:"line_item_id"`
	Quantity   int64    `json:"quantity"`
	Subtotal   Amount   `json:"subtotal"`
	LineItem   LineItem `json:"line_item"`
}

type Refund struct {
	ID              int64            `json:"id"`
	OrderID         int64            `json:"order_id"`
	CreatedAt       time.Time        `json:"created_at"`
	RefundLineItems []RefundLineItem `json:"refund_line_items"`
}

// ParseError reports a malformed webhook payload.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "invalid payload: " + e.Reason
	}
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
}

func ParseOrder(body []byte) (*Order, error) {
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if order.ID <= 0 {
		return nil, &ParseError{Field: "id", Reason: "required"}
	}
	for i, item := range order.LineItems {
		if err := validateLineItem(fmt.Sprintf("line_items[%d]", i), item); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

func ParseRefund(body []byte) (*Refund, error) {
	var refund Refund
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if refund.ID <= 0 {
		return nil, &ParseError{Field: "id", Reason: "required"}
	}
	if refund.OrderID <= 0 {
		return nil, &ParseError{Field: "order_id", Reason: "required"}
	}
	for i, rli := range refund.RefundLineItems {
		field := fmt.Sprintf("refund_line_items[%d]", i)
		if rli.Quantity < 0 {
			return nil, &ParseError{Field: field + ".quantity", Reason: "must not be negative"}
		}
		if err := validateLineItem(field+".line_item", rli.LineItem); err != nil {
			return nil, err
		}
	}
	return &refund, nil
}

func validateLineItem(field string, item LineItem) error {
	if item.Quantity < 0 {
		return &ParseError{Field: field + ".quantity", Reason: "must not be negative"}
	}
	if item.Price.Cents < 0 {
		return &ParseError{Field: field + ".price", Reason: "must not be negative"}
	}
	if item.ProductID != nil && *item.ProductID <= 0 {
		return &ParseError{Field: field + ".product_id", Reason: "must be positive"}
	}
	return nil
}
