package email

import (
	"strings"

	"github.com/smallbiznis/campaignbridge/internal/config"
	sideeffectdomain "github.com/smallbiznis/campaignbridge/internal/sideeffect/domain"
	sideeffectservice "github.com/smallbiznis/campaignbridge/internal/sideeffect/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(NewConfirmationSender),
	fx.Invoke(func(q *sideeffectservice.Queue, s *ConfirmationSender) {
		q.Register(sideeffectdomain.KindOrderConfirmationEmail, s.Handle)
	}),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if strings.TrimSpace(cfg.Email.SMTPHost) == "" {
		log.Named("providers.email").Warn("SMTP_HOST not set, confirmation emails are discarded")
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}
