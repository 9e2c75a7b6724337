package alert

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/providers/awscfg"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	sideeffectservice "github.com/smallbiznis/campaignbridge/internal/sideeffect/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.alert",
	fx.Provide(NewFromConfig),
	fx.Provide(NewHandler),
	fx.Invoke(func(q *sideeffectservice.Queue, h *Handler) {
		q.Register(sideeffectdomain.KindOperatorAlert, h.Handle)
	}),
)

// NewFromConfig publishes to ALERT_SNS_TOPIC_ARN when set, otherwise to the log.
func NewFromConfig(cfg config.Config, loader *awscfg.Loader, log *zap.Logger) (Publisher, error) {
	log = log.Named("providers.alert")
	topic := strings.TrimSpace(cfg.AWS.AlertSNSTopicARN)
	if topic == "" {
		log.Warn("ALERT_SNS_TOPIC_ARN not set, operator alerts go to the log only")
		return NewLogPublisher(log), nil
	}
	awsCfg, err := loader.Load(context.Background())
	if err != nil {
		return nil, err
	}
	log.Info("operator alerts on sns", zap.String("topic", topic))
	return NewSNSPublisher(sns.NewFromConfig(awsCfg), topic), nil
}
