package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderExample(t *testing.T) {
	order, err := ParseOrder([]byte(`{"id":123,"line_items":[{"product_id":555,"quantity":4,"price":"6.00"}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(123), order.ID)
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, int64(555), *order.LineItems[0].ProductID)
	assert.Equal(t, int64(4), order.LineItems[0].Quantity)
	assert.Equal(t, int64(600), order.LineItems[0].Price.Cents)
	assert.False(t, order.Cancelled())
}

func TestParseOrderAcceptsNumericPriceAndCustomItems(t *testing.T) {
	order, err := ParseOrder([]byte(`{
		"id": 9,
		"cancelled_at": "2026-03-01T10:00:00Z",
		"line_items": [
			{"product_id": null, "title": "Tip", "quantity": 1, "price": "5.00"},
			{"product_id": 1, "quantity": 2, "price": 7.5}
		]
	}`))
	require.NoError(t, err)
	assert.Nil(t, order.LineItems[0].ProductID)
	assert.Equal(t, int64(750), order.LineItems[1].Price.Cents)
	assert.True(t, order.Cancelled())
}

func TestParseOrderRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing id":        `{"line_items":[]}`,
		"negative quantity": `{"id":1,"line_items":[{"product_id":1,"quantity":-1,"price":"1.00"}]}`,
		"bad price":         `{"id":1,"line_items":[{"product_id":1,"quantity":1,"price":"abc"}]}`,
		"not json":          `{"id":`,
		"wrong type":        `{"id":"abc"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOrder([]byte(body))
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
		})
	}
}

func TestParseRefund(t *testing.T) {
	refund, err := ParseRefund([]byte(`{
		"id": 77,
		"order_id": 123,
		"refund_line_items": [
			{"quantity": 2, "line_item": {"product_id": 555, "quantity": 4, "price": "6.00"}}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, int64(123), refund.OrderID)
	assert.Equal(t, int64(2), refund.RefundLineItems[0].Quantity)

	_, err = ParseRefund([]byte(`{"id": 77, "refund_line_items": []}`))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "order_id", parseErr.Field)
}

func TestProgressAddClampsAtZero(t *testing.T) {
	p := Progress{CurrentQuantity: 3, BackerCount: 1, TotalRaisedCents: 500}
	got := p.Add(Delta{CurrentQuantity: -5, BackerCount: -1, TotalRaisedCents: -200})
	assert.Equal(t, Progress{CurrentQuantity: 0, BackerCount: 0, TotalRaisedCents: 300}, got)
}

func TestBackerName(t *testing.T) {
	order := &Order{Customer: &Customer{FirstName: "Ada", LastName: "Lovelace"}}
	assert.Equal(t, "Ada Lovelace", order.BackerName())
	assert.Equal(t, "Anonymous", (&Order{}).BackerName())
}

func TestEventKeys(t *testing.T) {
	assert.Equal(t, "order:123", OrderEventKey(123))
	assert.Equal(t, "refund:7", RefundEventKey(7))
	assert.Equal(t, "cancel:123", CancelEventKey(123))
	assert.Equal(t, "order:123|gid://shopify/Product/555", ProductEventKey("order:123", "gid://shopify/Product/555"))
}
