package alert

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func sampleAlert() sideeffectdomain.OperatorAlert {
	return sideeffectdomain.OperatorAlert{
		Severity: sideeffectdomain.SeverityCritical,
		Subject:  "Order creation failed",
		Message:  "Payment succeeded but no order was created.",
		Fields:   map[string]string{"payment_intent_id": "pi_123", "attempt": "1"},
	}
}

func TestHandlerPublishesToSNS(t *testing.T) {
	client := &fakeSNS{}
	h := NewHandler(NewSNSPublisher(client, "arn:aws:sns:us-east-1:123456789012:ops"))

	payload, err := json.Marshal(sampleAlert())
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), payload))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:ops", aws.ToString(in.TopicArn))
	assert.Equal(t, "[CRITICAL] Order creation failed", aws.ToString(in.Subject))
	assert.Equal(t, "Payment succeeded but no order was created.\n\nattempt: 1\npayment_intent_id: pi_123", aws.ToString(in.Message))
	assert.Equal(t, "critical", aws.ToString(in.MessageAttributes["severity"].StringValue))
}

func TestHandlerReturnsPublishErrors(t *testing.T) {
	client := &fakeSNS{err: errors.New("throttled")}
	h := NewHandler(NewSNSPublisher(client, "arn"))

	payload, err := json.Marshal(sampleAlert())
	require.NoError(t, err)
	assert.ErrorContains(t, h.Handle(context.Background(), payload), "throttled")
}

func TestHandlerRejectsInvalidPayload(t *testing.T) {
	h := NewHandler(NewSNSPublisher(&fakeSNS{}, "arn"))

	assert.ErrorIs(t, h.Handle(context.Background(), []byte("nope")), ErrInvalidAlert)
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"severity":"warning"}`)), ErrInvalidAlert)
}

func TestSubjectIsBounded(t *testing.T) {
	subject := Subject(sideeffectdomain.OperatorAlert{Subject: strings.Repeat("stuck ", 40) + "\nline"})
	assert.LessOrEqual(t, len(subject), subjectLimit)
	assert.True(t, strings.HasPrefix(subject, "[WARNING] stuck stuck"))
	assert.NotContains(t, subject, "\n")
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), sampleAlert()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	assert.Equal(t, "pi_123", entry.ContextMap()["payment_intent_id"])
}
