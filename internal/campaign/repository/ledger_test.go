package repository

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

// fakeDynamo models the conditional writes the ledger issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]dynamoItem
}

func newFakeDynamo() *fakeDynamo { return &fakeDynamo{items: map[string]dynamoItem{}} }

func ccf() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func numberOf(values map[string]types.AttributeValue, name string) int64 {
	n, _ := strconv.ParseInt(values[name].(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(in.Item, &item); err != nil {
		return nil, err
	}
	if _, ok := f.items[item.PK]; ok {
		return nil, ccf()
	}
	f.items[item.PK] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: av}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := keyOf(in.Key)
	item := f.items[pk]
	if in.ConditionExpression == nil {
		item.ProcessedAt = numberOf(in.ExpressionAttributeValues, ":at")
		f.items[pk] = item
		return &dynamodb.UpdateItemOutput{}, nil
	}
	if item.ProcessedAt > 0 || item.ReceivedAt > numberOf(in.ExpressionAttributeValues, ":cutoff") {
		return nil, ccf()
	}
	item.ReceivedAt = numberOf(in.ExpressionAttributeValues, ":now")
	f.items[pk] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := keyOf(in.Key)
	if f.items[pk].ProcessedAt > 0 {
		return nil, ccf()
	}
	delete(f.items, pk)
	return &dynamodb.DeleteItemOutput{}, nil
}

func ledgerBackends(t *testing.T) map[string]func(clock.Clock) domain.EventLedger {
	return map[string]func(clock.Clock) domain.EventLedger{
		"gorm": func(clk clock.Clock) domain.EventLedger {
			node, err := snowflake.NewNode(1)
			require.NoError(t, err)
			return NewGormLedger(dbtest.Open(t), node, clk)
		},
		"dynamodb": func(clk clock.Clock) domain.EventLedger {
			return NewDynamoLedger(newFakeDynamo(), "events", clk)
		},
	}
}

func record(clk clock.Clock, webhookID string) domain.EventRecord {
	return domain.EventRecord{
		Topic:      domain.TopicOrdersCreate,
		EventKey:   domain.ProductEventKey(domain.OrderEventKey(123), "gid://shopify/Product/555"),
		WebhookID:  webhookID,
		ShopDomain: "shop.myshopify.com",
		ReceivedAt: clk.Now(),
	}
}

func TestLedgerClaimLifecycle(t *testing.T) {
	for name, open := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewFakeClock(t0)
			ledger := open(clk)
			ctx := context.Background()
			stale := 2 * time.Minute

			require.NoError(t, ledger.Claim(ctx, record(clk, "wh-1"), stale))

			clk.Advance(time.Second)
			err := ledger.Claim(ctx, record(clk, "wh-2"), stale)
			assert.ErrorIs(t, err, domain.ErrEventInProgress)

			rec := record(clk, "")
			require.NoError(t, ledger.MarkProcessed(ctx, rec.Topic, rec.EventKey, clk.Now()))

			clk.Advance(time.Hour)
			err = ledger.Claim(ctx, record(clk, "wh-3"), stale)
			assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

			require.NoError(t, ledger.Release(ctx, rec.Topic, rec.EventKey), "processed events are never released")
			err = ledger.Claim(ctx, record(clk, "wh-4"), stale)
			assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
		})
	}
}

func TestLedgerStaleClaimIsTakenOver(t *testing.T) {
	for name, open := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewFakeClock(t0)
			ledger := open(clk)
			ctx := context.Background()
			stale := 2 * time.Minute

			require.NoError(t, ledger.Claim(ctx, record(clk, "wh-1"), stale))

			clk.Advance(3 * time.Minute)
			require.NoError(t, ledger.Claim(ctx, record(clk, "wh-2"), stale))
			assert.ErrorIs(t, ledger.Claim(ctx, record(clk, "wh-3"), stale), domain.ErrEventInProgress)
		})
	}
}

func TestLedgerReleaseAllowsImmediateRetry(t *testing.T) {
	for name, open := range ledgerBackends(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewFakeClock(t0)
			ledger := open(clk)
			ctx := context.Background()

			rec := record(clk, "wh-1")
			require.NoError(t, ledger.Claim(ctx, rec, time.Minute))
			require.NoError(t, ledger.Release(ctx, rec.Topic, rec.EventKey))
			require.NoError(t, ledger.Claim(ctx, record(clk, "wh-2"), time.Minute))
		})
	}
}
