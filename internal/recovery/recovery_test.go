package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/checkout/repository"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeIntents struct {
	items []domain.PaymentIntent
}

func (f *fakeIntents) New(context.Context, domain.NewIntentParams) (*domain.PaymentIntent, error) {
	return nil, domain.ErrNotConfigured
}

func (f *fakeIntents) Get(_ context.Context, id string) (*domain.PaymentIntent, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			pi := f.items[i]
			return &pi, nil
		}
	}
	return nil, domain.ErrIntentNotFound
}

func (f *fakeIntents) Update(context.Context, string, domain.UpdateIntentParams) (*domain.PaymentIntent, error) {
	return nil, domain.ErrNotConfigured
}

func (f *fakeIntents) List(_ context.Context, since time.Time) ([]domain.PaymentIntent, error) {
	var out []domain.PaymentIntent
	for _, pi := range f.items {
		if !pi.Created.Before(since) {
			out = append(out, pi)
		}
	}
	return out, nil
}

type fakeProcessor struct {
	calls []*domain.OrderRequest
}

func (f *fakeProcessor) ProcessIntent(_ context.Context, intent *domain.PaymentIntent, req *domain.OrderRequest) (*domain.OrderResult, error) {
	f.calls = append(f.calls, req)
	return &domain.OrderResult{PaymentIntentID: intent.ID, OrderID: "5001", OrderName: "#1001"}, nil
}

type fixture struct {
	db        *gorm.DB
	intents   *fakeIntents
	processor *fakeProcessor
	svc       *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{db: db, intents: &fakeIntents{}, processor: &fakeProcessor{}}
	f.svc = NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(now),
		Repo:      repository.Provide(),
		Intents:   f.intents,
		Processor: f.processor,
	})
	return f
}

func orderMetadata(t *testing.T) map[string]string {
	t.Helper()
	req := domain.OrderRequest{
		Items:          []domain.OrderItem{{VariantID: "41", Title: "Sticker pack", Quantity: 2, Price: 7.50}},
		Customer:       domain.Customer{Email: "jane@example.com", FirstName: "Jane"},
		DeliveryMethod: "shipping",
		DeliveryPrice:  8.00,
		Total:          23.00,
	}
	totals, err := req.Compute()
	require.NoError(t, err)
	return domain.EncodeMetadata(req, totals)
}

func intent(t *testing.T, id string, status domain.IntentStatus, age time.Duration, extra map[string]string) domain.PaymentIntent {
	meta := orderMetadata(t)
	for k, v := range extra {
		meta[k] = v
	}
	return domain.PaymentIntent{ID: id, Status: status, Amount: 2300, Currency: "usd", Created: now.Add(-age), Metadata: meta}
}

func insertLink(t *testing.T, db *gorm.DB, id string, status domain.LinkStatus, orderID string) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	link := &domain.OrderLink{
		ID:              node.Generate(),
		PaymentIntentID: id,
		Status:          status,
		Attempts:        1,
		ClaimedAt:       now.Add(-time.Hour),
		CreatedAt:       now.Add(-time.Hour),
		UpdatedAt:       now.Add(-time.Hour),
	}
	if orderID != "" {
		name := "#" + orderID
		link.ShopifyOrderID, link.ShopifyOrderName = &orderID, &name
	}
	if status == domain.LinkFailed {
		msg := "shopify: 422"
		link.LastError = &msg
	}
	claimed, err := repository.Provide().Claim(context.Background(), db, link)
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestScanPartitionsSucceededIntents(t *testing.T) {
	f := setup(t)
	f.intents.items = []domain.PaymentIntent{
		intent(t, "pi_meta", domain.IntentSucceeded, time.Hour, map[string]string{domain.MetaShopifyOrderID: "7001", domain.MetaShopifyOrderName: "#7001"}),
		intent(t, "pi_ledger", domain.IntentSucceeded, 2*time.Hour, nil),
		intent(t, "pi_failed", domain.IntentSucceeded, 3*time.Hour, nil),
		intent(t, "pi_missing", domain.IntentSucceeded, 4*time.Hour, nil),
		intent(t, "pi_truncated", domain.IntentSucceeded, 5*time.Hour, map[string]string{domain.MetaItemsTruncated: "true"}),
		intent(t, "pi_pending", domain.IntentRequiresPaymentMethod, time.Hour, nil),
		intent(t, "pi_old", domain.IntentSucceeded, 48*time.Hour, nil),
	}
	insertLink(t, f.db, "pi_ledger", domain.LinkLinked, "7002")
	insertLink(t, f.db, "pi_failed", domain.LinkFailed, "")

	report, err := f.svc.Scan(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), report.Since)
	assert.Equal(t, 6, report.Scanned)

	linked := map[string]string{}
	for _, rec := range report.Linked {
		linked[rec.PaymentIntentID] = rec.OrderID
	}
	assert.Equal(t, map[string]string{"pi_meta": "7001", "pi_ledger": "7002"}, linked)

	require.Len(t, report.Unlinked, 3)
	assert.Equal(t, "pi_truncated", report.Unlinked[0].PaymentIntentID)
	assert.True(t, report.Unlinked[0].Incomplete)
	assert.Equal(t, "pi_missing", report.Unlinked[1].PaymentIntentID)
	assert.False(t, report.Unlinked[1].Incomplete)
	assert.Equal(t, "pi_failed", report.Unlinked[2].PaymentIntentID)
	assert.Equal(t, domain.LinkFailed, report.Unlinked[2].LinkStatus)
	assert.Equal(t, "shopify: 422", report.Unlinked[2].LastError)
	assert.Equal(t, "jane@example.com", report.Unlinked[2].CustomerEmail)
	assert.Equal(t, "USD", report.Unlinked[2].Currency)
}

func TestRebuildOrderRefusesTruncatedItems(t *testing.T) {
	pi := intent(t, "pi_1", domain.IntentSucceeded, 0, nil)
	req, err := RebuildOrder(&pi)
	require.NoError(t, err)
	assert.Equal(t, 23.00, req.Total)
	assert.Equal(t, "jane@example.com", req.Customer.Email)

	pi.Metadata[domain.MetaItemsTruncated] = "true"
	_, err = RebuildOrder(&pi)
	assert.ErrorIs(t, err, domain.ErrIncompleteMetadata)
	assert.Contains(t, err.Error(), "pi_1")
}

func TestReplayProcessesRebuiltOrders(t *testing.T) {
	f := setup(t)
	f.intents.items = []domain.PaymentIntent{
		intent(t, "pi_a", domain.IntentSucceeded, time.Hour, nil),
		intent(t, "pi_b", domain.IntentSucceeded, time.Hour, map[string]string{domain.MetaItemsTruncated: "true"}),
		intent(t, "pi_c", domain.IntentSucceeded, time.Hour, map[string]string{domain.MetaShopifyOrderID: "7003"}),
		intent(t, "pi_d", domain.IntentCanceled, time.Hour, nil),
	}

	var slept []time.Duration
	f.svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	var confirmed []string
	var progress []string

	outcomes, err := f.svc.Replay(context.Background(), []string{"pi_a", "pi_b", "pi_a", "pi_c", "pi_d", "pi_x"}, Options{
		Confirm:  func(ids []string) bool { confirmed = ids; return true },
		Delay:    time.Second,
		Progress: func(o Outcome) { progress = append(progress, o.PaymentIntentID) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_a", "pi_b", "pi_c", "pi_d", "pi_x"}, confirmed)
	assert.Equal(t, confirmed, progress)
	assert.Len(t, slept, 4)
	require.Len(t, outcomes, 5)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "5001", outcomes[0].Result.OrderID)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrIncompleteMetadata)
	require.NoError(t, outcomes[2].Err)
	assert.True(t, outcomes[2].Result.AlreadyLinked)
	assert.ErrorIs(t, outcomes[3].Err, domain.ErrPaymentNotSucceeded)
	assert.ErrorIs(t, outcomes[4].Err, domain.ErrIntentNotFound)

	require.Len(t, f.processor.calls, 1)
	assert.Equal(t, 23.00, f.processor.calls[0].Total)
}

func TestReplayAbortsWhenNotConfirmed(t *testing.T) {
	f := setup(t)
	f.intents.items = []domain.PaymentIntent{
		intent(t, "pi_a", domain.IntentSucceeded, time.Hour, nil),
		intent(t, "pi_b", domain.IntentSucceeded, time.Hour, nil),
	}

	_, err := f.svc.Replay(context.Background(), []string{"pi_a", "pi_b"}, Options{
		Confirm: func([]string) bool { return false },
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, f.processor.calls)
}

func TestReplaySingleIntentSkipsConfirmation(t *testing.T) {
	f := setup(t)
	f.intents.items = []domain.PaymentIntent{intent(t, "pi_a", domain.IntentSucceeded, time.Hour, nil)}

	outcomes, err := f.svc.Replay(context.Background(), []string{"pi_a"}, Options{
		Confirm: func([]string) bool { t.Fatal("confirmation requested for a single intent"); return false },
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
}
