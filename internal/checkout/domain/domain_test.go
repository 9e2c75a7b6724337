package domain

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() OrderRequest {
	return OrderRequest{
		Items: []OrderItem{
			{VariantID: "gid://shopify/ProductVariant/41", Title: "Sticker pack", Quantity: 2, Price: 7.50},
		},
		Customer:       Customer{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"},
		DeliveryMethod: "shipping",
		DeliveryPrice:  8.00,
		Total:          23.00,
		ShippingAddress: &Address{
			Address1: "1 Main St",
			City:     "Austin",
			Province: "TX",
			Zip:      "78701",
			Country:  "US",
		},
	}
}

func TestComputeTotals(t *testing.T) {
	order := sampleOrder()
	order.Tip = 1.25

	totals, err := order.Compute()
	require.NoError(t, err)
	assert.Equal(t, int64(2425), totals.Total)
	assert.Equal(t, int64(800), totals.Delivery)
	assert.Equal(t, int64(125), totals.Tip)
	require.Len(t, totals.Lines, 1)
	assert.Equal(t, int64(750), totals.Lines[0].Price)
}

func TestDeclaredTotalMismatch(t *testing.T) {
	order := OrderRequest{
		Items:          []OrderItem{{VariantID: "v1", Quantity: 2, Price: 7.50}},
		Customer:       Customer{Email: "jane@example.com"},
		DeliveryMethod: "shipping",
		DeliveryPrice:  8.00,
		Total:          25.00,
	}

	totals, err := order.Compute()
	require.NoError(t, err)
	assert.Equal(t, int64(2300), totals.Total)

	err = order.CheckDeclared(totals)
	require.ErrorIs(t, err, ErrAmountMismatch)
	assert.Contains(t, err.Error(), "25.00")
	assert.Contains(t, err.Error(), "23.00")

	order.Total = 23.01
	assert.NoError(t, order.CheckDeclared(totals))
	order.Total = 22.98
	assert.ErrorIs(t, order.CheckDeclared(totals), ErrAmountMismatch)
}

func TestComputeRejectsInvalidOrders(t *testing.T) {
	cases := map[string]func(*OrderRequest){
		"no items":       func(o *OrderRequest) { o.Items = nil },
		"missing email":  func(o *OrderRequest) { o.Customer.Email = "" },
		"zero quantity":  func(o *OrderRequest) { o.Items[0].Quantity = 0 },
		"negative price": func(o *OrderRequest) { o.Items[0].Price = -1 },
		"negative tip":   func(o *OrderRequest) { o.Tip = -0.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			order := sampleOrder()
			mutate(&order)
			_, err := order.Compute()
			require.ErrorIs(t, err, ErrInvalidOrder)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestValidateVariants(t *testing.T) {
	order := sampleOrder()
	assert.NoError(t, order.ValidateVariants())

	order.Items[0].VariantID = "v1"
	assert.ErrorIs(t, order.ValidateVariants(), ErrInvalidOrder)

	id, err := ParseVariantID("12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)
}

func TestMetadataRoundTrip(t *testing.T) {
	order := sampleOrder()
	totals, err := order.Compute()
	require.NoError(t, err)

	meta := EncodeMetadata(order, totals)
	assert.Equal(t, `[{"v":"41","q":2,"p":"7.50"}]`, meta[MetaItems])
	assert.Equal(t, "8.00", meta[MetaDeliveryPrice])
	assert.Equal(t, "Austin", meta[MetaShipCity])
	assert.NotContains(t, meta, MetaItemsTruncated)
	assert.NotContains(t, meta, MetaCustomerPhone)

	rebuilt, err := DecodeMetadata(meta)
	require.NoError(t, err)
	assert.Equal(t, 23.00, rebuilt.Total)
	assert.Equal(t, "jane@example.com", rebuilt.Customer.Email)
	require.Len(t, rebuilt.Items, 1)
	assert.Equal(t, "41", rebuilt.Items[0].VariantID)
	assert.Equal(t, 2, rebuilt.Items[0].Quantity)
	require.NotNil(t, rebuilt.ShippingAddress)
	assert.Equal(t, "TX", rebuilt.ShippingAddress.Province)
}

func TestMetadataTruncatesItems(t *testing.T) {
	order := sampleOrder()
	order.Items = nil
	for i := 0; i < 40; i++ {
		order.Items = append(order.Items, OrderItem{VariantID: fmt.Sprintf("%d", 4000000000000+i), Quantity: 1, Price: 1})
	}
	totals, err := order.Compute()
	require.NoError(t, err)

	meta := EncodeMetadata(order, totals)
	assert.LessOrEqual(t, len(meta[MetaItems]), MetadataValueLimit)
	assert.Equal(t, "true", meta[MetaItemsTruncated])
	assert.True(t, strings.HasPrefix(meta[MetaItems], `[{"v":"4000000000000"`))

	_, err = DecodeMetadata(meta)
	assert.ErrorIs(t, err, ErrIncompleteMetadata)
}

func TestDecodeMetadataRequiresItems(t *testing.T) {
	_, err := DecodeMetadata(map[string]string{MetaCustomerEmail: "jane@example.com"})
	assert.ErrorIs(t, err, ErrIncompleteMetadata)

	_, err = DecodeMetadata(map[string]string{MetaItems: "not json"})
	assert.ErrorIs(t, err, ErrIncompleteMetadata)
}

func TestSanitizeMessage(t *testing.T) {
	cases := map[string]string{
		"Stripe API error: Your card was declined.": "error: Your card was declined.",
		"Your card has insufficient funds.":         "Your card has insufficient funds.",
		"stripe":                                    genericClientError,
		"Invalid API Key provided: sk_test_***":     "Invalid Key provided: sk_test_***",
		"Rapid retries are not allowed":             "Rapid retries are not allowed",
		"Request to StripeAPI failed":               "Request to failed",
		"Invalid api_key provided":                  "Invalid key provided",
		"apiKey missing":                            "Key missing",
		"APIKey rejected":                           "Key rejected",
		"capital letters in the rapid response":     "capital letters in the rapid response",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeMessage(in), in)
	}
}

func TestLinkedOrder(t *testing.T) {
	pi := &PaymentIntent{ID: "pi_1", Metadata: map[string]string{MetaShopifyOrderID: "1001", MetaShopifyOrderName: "#1001"}}
	linked, ok := pi.LinkedOrder()
	require.True(t, ok)
	assert.Equal(t, OrderResult{PaymentIntentID: "pi_1", OrderID: "1001", OrderName: "#1001", AlreadyLinked: true}, linked)

	_, ok = (&PaymentIntent{ID: "pi_2"}).LinkedOrder()
	assert.False(t, ok)
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", TruncateUTF8("abc", 10))
	assert.Equal(t, "ab", TruncateUTF8("abc", 2))
	assert.Equal(t, "", TruncateUTF8("abc", 0))
	// "é" is two bytes; a cut through its middle backs off to the rune start.
	assert.Equal(t, "caf", TruncateUTF8("café", 4))
	assert.Equal(t, "café", TruncateUTF8("café", 5))

	street := "a" + strings.Repeat("ü", MetadataValueLimit)
	order := sampleOrder()
	order.ShippingAddress.Address1 = street
	totals, err := order.Compute()
	require.NoError(t, err)
	meta := EncodeMetadata(order, totals)
	assert.LessOrEqual(t, len(meta[MetaShipAddress1]), MetadataValueLimit)
	assert.True(t, utf8.ValidString(meta[MetaShipAddress1]))
}
