package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
)

// Ledger records expire after this long; Shopify stops redelivering after 48h.
const dynamoRecordTTL = 7 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client the ledger uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoItem struct {
	PK          string `dynamodbav:"PK"`
	Topic       string `dynamodbav:"Topic"`
	EventKey    string `dynamodbav:"EventKey"`
	WebhookID   string `dynamodbav:"WebhookId"`
	Shop        string `dynamodbav:"Shop"`
	ReceivedAt  int64  `dynamodbav:"ReceivedAt"`
	ProcessedAt int64  `dynamodbav:"ProcessedAt,omitempty"`
	ExpiresAt   int64  `dynamodbav:"ExpiresAt"`
}

type dynamoLedger struct {
	client DynamoAPI
	table  string
	clock  clock.Clock
}

func NewDynamoLedger(client DynamoAPI, table string, clk clock.Clock) domain.EventLedger {
	return &dynamoLedger{client: client, table: table, clock: clk}
}

func dynamoKey(topic, eventKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("EV#%s#%s", topic, eventKey)},
	}
}

func (r *dynamoLedger) Claim(ctx context.Context, rec domain.EventRecord, staleAfter time.Duration) error {
	now := rec.ReceivedAt
	if now.IsZero() {
		now = r.clock.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:         fmt.Sprintf("EV#%s#%s", rec.Topic, rec.EventKey),
		Topic:      rec.Topic,
		EventKey:   rec.EventKey,
		WebhookID:  rec.WebhookID,
		Shop:       rec.ShopDomain,
		ReceivedAt: now.UnixMilli(),
		ExpiresAt:  now.Add(dynamoRecordTTL).Unix(),
	})
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return err
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 dynamoKey(rec.Topic, rec.EventKey),
		UpdateExpression:    aws.String("SET ReceivedAt = :now, WebhookId = :wid"),
		ConditionExpression: aws.String("attribute_not_exists(ProcessedAt) AND ReceivedAt <= :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
			":wid":    &types.AttributeValueMemberS{Value: rec.WebhookID},
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(-staleAfter).UnixMilli(), 10)},
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return err
	}

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            dynamoKey(rec.Topic, rec.EventKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return err
	}
	var existing dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &existing); err != nil {
		return err
	}
	if existing.ProcessedAt > 0 {
		return domain.ErrEventAlreadyProcessed
	}
	return domain.ErrEventInProgress
}

func (r *dynamoLedger) MarkProcessed(ctx context.Context, topic, eventKey string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.table),
		Key:              dynamoKey(topic, eventKey),
		UpdateExpression: aws.String("SET ProcessedAt = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixMilli(), 10)},
		},
	})
	return err
}

func (r *dynamoLedger) Release(ctx context.Context, topic, eventKey string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.table),
		Key:                 dynamoKey(topic, eventKey),
		ConditionExpression: aws.String("attribute_not_exists(ProcessedAt)"),
	})
	if err != nil && isConditionFailed(err) {
		return nil
	}
	return err
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}
