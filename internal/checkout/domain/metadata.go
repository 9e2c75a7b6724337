package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/campaignbridge/pkg/money"
)

// MetadataValueLimit is the largest value the payment platform stores per key.
const MetadataValueLimit = 500

const (
	MetaShopifyOrderID      = "shopify_order_id"
	MetaShopifyOrderName    = "shopify_order_name"
	MetaShopifyOrderCreated = "shopify_order_created"
	MetaShopifyOrderFailed  = "shopify_order_failed"
	MetaShopifyOrderError   = "shopify_order_error"
	MetaShopifyOrderFailAt  = "shopify_order_failed_at"

	MetaCustomerEmail     = "customer_email"
	MetaCustomerFirstName = "customer_first_name"
	MetaCustomerLastName  = "customer_last_name"
	MetaCustomerPhone     = "customer_phone"
	MetaDeliveryMethod    = "delivery_method"
	MetaDeliveryPrice     = "delivery_price"
	MetaTip               = "tip"
	MetaItems             = "items"
	MetaItemsTruncated    = "items_truncated"

	MetaShipAddress1 = "ship_address1"
	MetaShipAddress2 = "ship_address2"
	MetaShipCity     = "ship_city"
	MetaShipProvince = "ship_province"
	MetaShipZip      = "ship_zip"
	MetaShipCountry  = "ship_country"
)

// metadataItem keeps item keys short so more lines fit in one value.
type metadataItem struct {
	VariantID string `json:"v"`
	Quantity  int    `json:"q"`
	Price     string `json:"p"`
}

// EncodeMetadata serializes order data into payment-intent metadata. Items
// that do not fit in MetadataValueLimit are dropped from the tail and
// items_truncated is set.
func EncodeMetadata(req OrderRequest, t Totals) map[string]string {
	meta := map[string]string{
		MetaCustomerEmail:     strings.TrimSpace(req.Customer.Email),
		MetaCustomerFirstName: strings.TrimSpace(req.Customer.FirstName),
		MetaCustomerLastName:  strings.TrimSpace(req.Customer.LastName),
		MetaCustomerPhone:     strings.TrimSpace(req.Customer.Phone),
		MetaDeliveryMethod:    strings.TrimSpace(req.DeliveryMethod),
		MetaDeliveryPrice:     money.FormatCents(t.Delivery),
		MetaTip:               money.FormatCents(t.Tip),
	}

	items := make([]metadataItem, 0, len(t.Lines))
	for _, line := range t.Lines {
		variantID := line.VariantID
		if id, err := ParseVariantID(variantID); err == nil {
			variantID = strconv.FormatInt(id, 10)
		}
		items = append(items, metadataItem{
			VariantID: variantID,
			Quantity:  line.Quantity,
			Price:     money.FormatCents(line.Price),
		})
	}
	encoded, truncated := encodeItems(items)
	meta[MetaItems] = encoded
	if truncated {
		meta[MetaItemsTruncated] = "true"
	}

	if addr := req.ShippingAddress; addr != nil {
		meta[MetaShipAddress1] = truncate(addr.Address1, MetadataValueLimit)
		meta[MetaShipAddress2] = truncate(addr.Address2, MetadataValueLimit)
		meta[MetaShipCity] = truncate(addr.City, MetadataValueLimit)
		meta[MetaShipProvince] = truncate(addr.Province, MetadataValueLimit)
		meta[MetaShipZip] = truncate(addr.Zip, MetadataValueLimit)
		meta[MetaShipCountry] = truncate(addr.Country, MetadataValueLimit)
	}

	for k, v := range meta {
		if v == "" {
			delete(meta, k)
		}
	}
	return meta
}

func encodeItems(items []metadataItem) (string, bool) {
	for n := len(items); n > 0; n-- {
		raw, err := json.Marshal(items[:n])
		if err != nil {
			return "[]", true
		}
		if len(raw) <= MetadataValueLimit {
			return string(raw), n < len(items)
		}
	}
	return "[]", len(items) > 0
}

// DecodeMetadata rebuilds an OrderRequest from metadata written by
// EncodeMetadata. A truncated or missing item list fails with
// ErrIncompleteMetadata. Total is set to the recomputed amount.
func DecodeMetadata(meta map[string]string) (*OrderRequest, error) {
	get := func(key string) string { return strings.TrimSpace(meta[key]) }

	if strings.EqualFold(get(MetaItemsTruncated), "true") {
		return nil, ErrIncompleteMetadata
	}
	rawItems := get(MetaItems)
	if rawItems == "" {
		return nil, ErrIncompleteMetadata
	}
	var items []metadataItem
	if err := json.Unmarshal([]byte(rawItems), &items); err != nil || len(items) == 0 {
		return nil, ErrIncompleteMetadata
	}

	req := &OrderRequest{
		Customer: Customer{
			Email:     get(MetaCustomerEmail),
			FirstName: get(MetaCustomerFirstName),
			LastName:  get(MetaCustomerLastName),
			Phone:     get(MetaCustomerPhone),
		},
		DeliveryMethod: get(MetaDeliveryMethod),
	}
	var err error
	if req.DeliveryPrice, err = centsMetaToFloat(get(MetaDeliveryPrice)); err != nil {
		return nil, ErrIncompleteMetadata
	}
	if req.Tip, err = centsMetaToFloat(get(MetaTip)); err != nil {
		return nil, ErrIncompleteMetadata
	}
	for _, item := range items {
		price, err := centsMetaToFloat(item.Price)
		if err != nil {
			return nil, ErrIncompleteMetadata
		}
		req.Items = append(req.Items, OrderItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     price,
		})
	}
	if city := get(MetaShipCity); city != "" || get(MetaShipAddress1) != "" {
		req.ShippingAddress = &Address{
			Address1: get(MetaShipAddress1),
			Address2: get(MetaShipAddress2),
			City:     city,
			Province: get(MetaShipProvince),
			Zip:      get(MetaShipZip),
			Country:  get(MetaShipCountry),
		}
	}

	totals, err := req.Compute()
	if err != nil {
		return nil, err
	}
	req.Total = float64(totals.Total) / 100
	return req, nil
}

func centsMetaToFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	cents, err := money.ParseCents(v)
	if err != nil {
		return 0, err
	}
	return float64(cents) / 100, nil
}

func truncate(s string, limit int) string {
	return TruncateUTF8(strings.TrimSpace(s), limit)
}

// TruncateUTF8 cuts s to at most limit bytes without splitting a rune.
func TruncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
