package domain

// OrderConfirmation is the payload of KindOrderConfirmationEmail.
type OrderConfirmation struct {
	PaymentIntentID string                  `json:"payment_intent_id"`
	OrderID         string                  `json:"order_id"`
	OrderName       string                  `json:"order_name"`
	Email           string                  `json:"email"`
	FirstName       string                  `json:"first_name"`
	Currency        string                  `json:"currency"`
	Items           []OrderConfirmationItem `json:"items"`
	Delivery        string                  `json:"delivery"`
	DeliveryPrice   string                  `json:"delivery_price"`
	Tip             string                  `json:"tip"`
	Total           string                  `json:"total"`
}

type OrderConfirmationItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// OperatorAlert is the payload of KindOperatorAlert.
type OperatorAlert struct {
	Severity Severity          `json:"severity"`
	Subject  string            `json:"subject"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
}
