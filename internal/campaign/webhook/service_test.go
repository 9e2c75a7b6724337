package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/campaign/aggregator"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/campaign/repository"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticResolver map[string][]string

func (s staticResolver) ProductTags(_ context.Context, ids []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, id := range ids {
		if tags, ok := s[id]; ok {
			out[id] = tags
		}
	}
	return out, nil
}

type applyCall struct {
	productGID string
	delta      domain.Delta
	entry      *domain.BackerEntry
}

type recordingApplier struct {
	mu    sync.Mutex
	calls []applyCall
	fail  map[string]error
}

func (r *recordingApplier) Apply(_ context.Context, productGID string, delta domain.Delta, entry *domain.BackerEntry) (domain.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[productGID]; err != nil {
		return domain.Progress{}, err
	}
	r.calls = append(r.calls, applyCall{productGID: productGID, delta: delta, entry: entry})
	return domain.Progress{}, nil
}

func newService(t *testing.T, resolver staticResolver, applier domain.Applier) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	holder := config.NewStaticCampaignConfigHolder(config.DefaultCampaignConfig())

	return NewService(Params{
		Log:        zap.NewNop(),
		Clock:      clk,
		Ledger:     repository.NewGormLedger(dbtest.Open(t), node, clk),
		Aggregator: aggregator.New(resolver, holder),
		Applier:    applier,
		Config:     holder,
	})
}

var campaign555 = staticResolver{"gid://shopify/Product/555": {"campaign"}}

func TestIngestOrderCreateExample(t *testing.T) {
	applier := &recordingApplier{}
	svc := newService(t, campaign555, applier)

	res, err := svc.Ingest(context.Background(), Delivery{
		Topic:     domain.TopicOrdersCreate,
		WebhookID: "wh-1",
		Body:      []byte(`{"id":123,"line_items":[{"product_id":555,"quantity":4,"price":"6.00"}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "order:123", res.EventKey)

	require.Len(t, applier.calls, 1)
	call := applier.calls[0]
	assert.Equal(t, "gid://shopify/Product/555", call.productGID)
	assert.Equal(t, domain.Delta{CurrentQuantity: 4, BackerCount: 1, TotalRaisedCents: 2400}, call.delta)
	require.NotNil(t, call.entry)
	assert.Equal(t, "Anonymous", call.entry.Name)
	assert.Equal(t, "24.00", call.entry.Amount)
	assert.Equal(t, "#123", call.entry.OrderRef)
	assert.Equal(t, "UNKNOWN", call.entry.Location)
}

func TestIngestRedeliveryIsNoop(t *testing.T) {
	applier := &recordingApplier{}
	svc := newService(t, campaign555, applier)
	body := []byte(`{"id":123,"name":"#1001","email":"jane@example.com","shipping_address":{"city":"Austin","province":"Texas"},"line_items":[{"product_id":555,"quantity":4,"price":"6.00"}]}`)

	_, err := svc.Ingest(context.Background(), Delivery{Topic: domain.TopicOrdersCreate, WebhookID: "wh-1", Body: body})
	require.NoError(t, err)
	res, err := svc.Ingest(context.Background(), Delivery{Topic: domain.TopicOrdersCreate, WebhookID: "wh-2", Body: body})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, applier.calls, 1)
	assert.Equal(t, "j***@example.com", applier.calls[0].entry.Email)
	assert.Equal(t, "Austin, Texas", applier.calls[0].entry.Location)
	assert.Equal(t, "#1001", applier.calls[0].entry.OrderRef)
}

func TestIngestFailedApplyIsRetriedOnRedelivery(t *testing.T) {
	applier := &recordingApplier{fail: map[string]error{"gid://shopify/Product/555": errors.New("throttled")}}
	svc := newService(t, campaign555, applier)
	body := []byte(`{"id":7,"line_items":[{"product_id":555,"quantity":1,"price":"6.00"}]}`)

	res, err := svc.Ingest(context.Background(), Delivery{Topic: domain.TopicOrdersCreate, Body: body})
	require.Error(t, err)
	assert.Equal(t, OutcomeError, res.Outcome)

	applier.fail = nil
	res, err = svc.Ingest(context.Background(), Delivery{Topic: domain.TopicOrdersCreate, Body: body})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Len(t, applier.calls, 1)
}

func TestIngestCancellationAndUpdates(t *testing.T) {
	applier := &recordingApplier{}
	svc := newService(t, staticResolver{"gid://shopify/Product/9": {"campaign"}}, applier)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, Delivery{
		Topic: domain.TopicOrdersUpdated,
		Body:  []byte(`{"id":5,"line_items":[{"product_id":9,"quantity":2,"price":"1.00"}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome, "updates without cancelled_at are no-ops")

	cancelled := []byte(`{"id":5,"cancelled_at":"2026-04-02T10:00:00Z","line_items":[
		{"product_id":9,"quantity":2,"price":"1.00"},
		{"product_id":9,"quantity":3,"price":"1.00"},
		{"product_id":9,"quantity":1,"price":"1.00"}]}`)
	for i := 0; i < 2; i++ {
		_, err = svc.Ingest(ctx, Delivery{Topic: domain.TopicOrdersUpdated, Body: cancelled})
		require.NoError(t, err)
	}

	require.Len(t, applier.calls, 1)
	assert.Equal(t, domain.Delta{CurrentQuantity: -6, BackerCount: -1, TotalRaisedCents: -600}, applier.calls[0].delta)
	assert.Nil(t, applier.calls[0].entry)
}

func TestIngestRefund(t *testing.T) {
	applier := &recordingApplier{}
	svc := newService(t, campaign555, applier)

	_, err := svc.Ingest(context.Background(), Delivery{
		Topic: domain.TopicRefundsCreate,
		Body:  []byte(`{"id":77,"order_id":123,"refund_line_items":[{"quantity":1,"line_item":{"product_id":555,"quantity":4,"price":"6.00"}}]}`),
	})
	require.NoError(t, err)
	require.Len(t, applier.calls, 1)
	assert.Equal(t, domain.Delta{CurrentQuantity: -1, TotalRaisedCents: -600}, applier.calls[0].delta)
}

func TestIngestRejectsMalformedAndIgnoresOtherTopics(t *testing.T) {
	applier := &recordingApplier{}
	svc := newService(t, campaign555, applier)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, Delivery{Topic: domain.TopicOrdersCreate, Body: []byte(`{"line_items":[]}`)})
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)

	_, err = svc.Ingest(ctx, Delivery{Topic: domain.TopicOrdersCreate, Body: []byte(`not json`)})
	require.ErrorAs(t, err, &perr)

	res, err := svc.Ingest(ctx, Delivery{Topic: "products/update", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	res, err = svc.Ingest(ctx, Delivery{Topic: domain.TopicOrdersCreate, Body: []byte(`{"id":1,"line_items":[{"product_id":42,"quantity":1,"price":"1.00"}]}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Empty(t, applier.calls)
}
