package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Path  string
	Token string
	Body  map[string]any
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, req recordedRequest)) (*Client, *[]recordedRequest) {
	t.Helper()
	var calls []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Path: r.URL.Path, Token: r.Header.Get("X-Shopify-Access-Token")}
		_ = json.Unmarshal(raw, &rec.Body)
		calls = append(calls, rec)
		handler(w, rec)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, AdminToken: "shpat_test", APIVersion: "2024-10"}, srv.Client(), nil)
	return client, &calls
}

func TestProductTagsBatchesIntoOneCall(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		_, _ = io.WriteString(w, `{"data":{"nodes":[
			{"id":"gid://shopify/Product/555","tags":["campaign","cookies"]},
			null,
			{"id":"gid://shopify/Product/777","tags":[]}
		]}}`)
	})

	tags, err := client.ProductTags(context.Background(), []string{
		"gid://shopify/Product/555",
		"gid://shopify/Product/666",
		"gid://shopify/Product/777",
	})
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "/admin/api/2024-10/graphql.json", (*calls)[0].Path)
	assert.Equal(t, "shpat_test", (*calls)[0].Token)
	assert.Equal(t, []string{"campaign", "cookies"}, tags["gid://shopify/Product/555"])
	_, missing := tags["gid://shopify/Product/666"]
	assert.False(t, missing)
}

func TestSetMetafieldsSurfacesUserErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		_, _ = io.WriteString(w, `{"data":{"metafieldsSet":{"userErrors":[{"field":["metafields","0","value"],"message":"must be an integer"}]}}}`)
	})

	err := client.SetMetafields(context.Background(), []MetafieldsSetInput{{
		OwnerID: "gid://shopify/Product/1", Namespace: "campaign", Key: "current_quantity", Type: "number_integer", Value: "x",
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserErrors))
	assert.Contains(t, err.Error(), "must be an integer")
}

func TestGraphQLErrorsReturned(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		_, _ = io.WriteString(w, `{"errors":[{"message":"Throttled"}]}`)
	})

	_, err := client.ProductMetafields(context.Background(), "gid://shopify/Product/1", "campaign")
	var gqlErrs GraphQLErrors
	require.ErrorAs(t, err, &gqlErrs)
	assert.Equal(t, "Throttled", gqlErrs[0].Message)
}

func TestProductMetafieldsMissingProduct(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		_, _ = io.WriteString(w, `{"data":{"product":null}}`)
	})

	_, err := client.ProductMetafields(context.Background(), "gid://shopify/Product/404", "campaign")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateOrderPostsREST(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"order":{"id":450789469,"name":"#1001"}}`)
	})

	order, err := client.CreateOrder(context.Background(), OrderInput{
		FinancialStatus: "paid",
		LineItems:       []OrderLineItem{{VariantID: 1, Quantity: 2}},
		Transactions:    []OrderTransaction{{Kind: "sale", Status: "success", Amount: "15.00"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(450789469), order.ID)
	assert.Equal(t, "#1001", order.Name)
	assert.Equal(t, "450789469", order.IDString())

	require.Len(t, *calls, 1)
	assert.Equal(t, "/admin/api/2024-10/orders.json", (*calls)[0].Path)
	body := (*calls)[0].Body["order"].(map[string]any)
	assert.Equal(t, "paid", body["financial_status"])
}

func TestAPIErrorOnStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, req recordedRequest) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"errors":{"line_items":["is invalid"]}}`)
	})

	_, err := client.CreateOrder(context.Background(), OrderInput{FinancialStatus: "paid"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
	assert.True(t, strings.Contains(apiErr.Body, "is invalid"))
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient(Config{}, nil, nil)
	_, err := client.ProductTags(context.Background(), []string{"gid://shopify/Product/1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProductGID(t *testing.T) {
	assert.Equal(t, "gid://shopify/Product/555", ProductGID("555"))
	assert.Equal(t, "gid://shopify/Product/555", ProductGID("gid://shopify/Product/555"))
	assert.Equal(t, "gid://shopify/Product/555", ProductGIDFromInt(555))
}
