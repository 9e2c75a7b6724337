package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/providers/awscfg"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrEventsTableRequired = errors.New("dynamodb_events_table_required")

type LedgerParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	GenID  *snowflake.Node
	Clock  clock.Clock
	Log    *zap.Logger
	AWS    *awscfg.Loader
}

// ProvideLedger picks the webhook event ledger backend from EVENT_STORE.
func ProvideLedger(p LedgerParams) (domain.EventLedger, error) {
	switch p.Config.AWS.EventStore {
	case config.EventStoreDynamoDB:
		table := strings.TrimSpace(p.Config.AWS.EventsTable)
		if table == "" {
			return nil, ErrEventsTableRequired
		}
		awsCfg, err := p.AWS.Load(context.Background())
		if err != nil {
			return nil, err
		}
		p.Log.Info("webhook event ledger on dynamodb", zap.String("table", table))
		return NewDynamoLedger(dynamodb.NewFromConfig(awsCfg), table, p.Clock), nil
	default:
		return NewGormLedger(p.DB, p.GenID, p.Clock), nil
	}
}
