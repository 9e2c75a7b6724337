// Package alert delivers operator alerts raised by the side-effect queue.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	"go.uber.org/zap"
)

// SNS rejects subjects longer than this.
const subjectLimit = 100

var ErrInvalidAlert = errors.New("invalid_operator_alert")

type Publisher interface {
	Publish(ctx context.Context, alert sideeffectdomain.OperatorAlert) error
}

type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, alert sideeffectdomain.OperatorAlert) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(Subject(alert)),
		Message:  aws.String(Body(alert)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"severity": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(severity(alert))),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// LogPublisher writes alerts to the process log when no topic is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, alert sideeffectdomain.OperatorAlert) error {
	fields := []zap.Field{zap.String("severity", string(severity(alert))), zap.String("subject", alert.Subject)}
	for _, k := range sortedKeys(alert.Fields) {
		fields = append(fields, zap.String(k, alert.Fields[k]))
	}
	if severity(alert) == sideeffectdomain.SeverityCritical {
		p.log.Error(alert.Message, fields...)
	} else {
		p.log.Warn(alert.Message, fields...)
	}
	return nil
}

// Subject is the single-line, length-bounded alert title.
func Subject(alert sideeffectdomain.OperatorAlert) string {
	s := fmt.Sprintf("[%s] %s", strings.ToUpper(string(severity(alert))), alert.Subject)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > subjectLimit {
		s = s[:subjectLimit-3] + "..."
	}
	return s
}

// Body renders the message followed by the fields in key order.
func Body(alert sideeffectdomain.OperatorAlert) string {
	var b strings.Builder
	b.WriteString(alert.Message)
	keys := sortedKeys(alert.Fields)
	if len(keys) > 0 {
		b.WriteString("\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, alert.Fields[k])
	}
	return b.String()
}

// Handler is the side-effect handler for operator alerts.
type Handler struct {
	publisher Publisher
}

func NewHandler(publisher Publisher) *Handler {
	return &Handler{publisher: publisher}
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var alert sideeffectdomain.OperatorAlert
	if err := json.Unmarshal(payload, &alert); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	if strings.TrimSpace(alert.Subject) == "" && strings.TrimSpace(alert.Message) == "" {
		return fmt.Errorf("%w: empty alert", ErrInvalidAlert)
	}
	return h.publisher.Publish(ctx, alert)
}

func severity(alert sideeffectdomain.OperatorAlert) sideeffectdomain.Severity {
	if alert.Severity == "" {
		return sideeffectdomain.SeverityWarning
	}
	return alert.Severity
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
