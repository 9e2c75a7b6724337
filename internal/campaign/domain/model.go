package domain

import (
	"strconv"
	"time"
)

const (
	TopicOrdersCreate  = "orders/create"
	TopicOrdersUpdated = "orders/updated"
	TopicRefundsCreate = "refunds/create"
)

// Metafield keys under the campaign namespace.
const (
	KeyCurrentQuantity = "current_quantity"
	KeyBackerCount     = "backer_count"
	KeyTotalRaised     = "total_raised"
	KeyBackers         = "backers"
)

type EventKind string

const (
	KindCreate EventKind = "create"
	KindRefund EventKind = "refund"
	KindCancel EventKind = "cancel"
)

// Delta is a signed adjustment to a product's progress. Zero fields are no-ops.
type Delta struct {
	CurrentQuantity  int64 `json:"current_quantity"`
	BackerCount      int64 `json:"backer_count"`
	TotalRaisedCents int64 `json:"total_raised_cents"`
}

func (d Delta) IsZero() bool {
	return d.CurrentQuantity == 0 && d.BackerCount == 0 && d.TotalRaisedCents == 0
}

func (d Delta) Negate() Delta {
	return Delta{
		CurrentQuantity:  -d.CurrentQuantity,
		BackerCount:      -d.BackerCount,
		TotalRaisedCents: -d.TotalRaisedCents,
	}
}

// Progress is the stored state of a campaign product.
type Progress struct {
	CurrentQuantity  int64 `json:"current_quantity"`
	BackerCount      int64 `json:"backer_count"`
	TotalRaisedCents int64 `json:"total_raised_cents"`
}

// Add applies d and clamps every field at zero.
func (p Progress) Add(d Delta) Progress {
	return Progress{
		CurrentQuantity:  max(p.CurrentQuantity+d.CurrentQuantity, 0),
		BackerCount:      max(p.BackerCount+d.BackerCount, 0),
		TotalRaisedCents: max(p.TotalRaisedCents+d.TotalRaisedCents, 0),
	}
}

// Totals is the aggregated contribution of one event to one product.
type Totals struct {
	Quantity    int64
	AmountCents int64
	Lines       int
}

// BackerEntry is one row of the public backer feed.
type BackerEntry struct {
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Quantity  int64     `json:"quantity"`
	Amount    string    `json:"amount"`
	OrderRef  string    `json:"order_ref"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRecord is a claim in the webhook event ledger.
type EventRecord struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	Topic       string     `json:"topic" gorm:"not null"`
	EventKey    string     `json:"event_key" gorm:"not null"`
	WebhookID   string     `json:"webhook_id"`
	ShopDomain  string     `json:"shop_domain"`
	ReceivedAt  time.Time  `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func (EventRecord) TableName() string { return "campaign_webhook_events" }

// OrderEventKey identifies the logical order object for orders/create.
func OrderEventKey(orderID int64) string { return "order:" + strconv.FormatInt(orderID, 10) }

// RefundEventKey identifies one refund object.
func RefundEventKey(refundID int64) string { return "refund:" + strconv.FormatInt(refundID, 10) }

// CancelEventKey is per order so repeated orders/updated deliveries cancel once.
func CancelEventKey(orderID int64) string { return "cancel:" + strconv.FormatInt(orderID, 10) }

// ProductEventKey scopes an event key to one product application.
func ProductEventKey(eventKey, productGID string) string { return eventKey + "|" + productGID }
