// Package awscfg loads the shared AWS SDK configuration once per process.
package awscfg

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("aws",
	fx.Provide(NewLoader),
)

type Loader struct {
	region string

	once sync.Once
	cfg  aws.Config
	err  error
}

func NewLoader(cfg config.Config) *Loader {
	return &Loader{region: cfg.AWS.Region}
}

// Load resolves credentials from the default chain. Only components that are
// configured to talk to AWS call it.
func (l *Loader) Load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		opts := []func(*awsconfig.LoadOptions) error{}
		if l.region != "" {
			opts = append(opts, awsconfig.WithRegion(l.region))
		}
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx, opts...)
	})
	return l.cfg, l.err
}
