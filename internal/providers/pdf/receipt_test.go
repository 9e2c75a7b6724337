package pdf

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	r, err := New().GenerateReceipt(context.Background(), ReceiptData{
		StoreName:     "Campaign Store",
		OrderName:     "#1001",
		DatePaid:      "2026-03-01",
		PaymentRef:    "pi_123",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		ShipTo:        "Austin, TX",
		Items: []ReceiptItem{
			{Description: "Sticker pack", Qty: 2, UnitPrice: "7.50", Amount: "15.00"},
		},
		Delivery: "8.00",
		Tip:      "0.00",
		Total:    "23.00",
		Currency: "USD",
	})
	require.NoError(t, err)

	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Greater(t, len(raw), 4)
	assert.Equal(t, "%PDF", string(raw[:4]))
}

func TestGenerateReceiptRequiresItems(t *testing.T) {
	_, err := New().GenerateReceipt(context.Background(), ReceiptData{OrderName: "#1"})
	assert.ErrorIs(t, err, ErrEmptyReceipt)
}
