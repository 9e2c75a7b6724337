package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CampaignConfig tunes how campaign products are recognised and how progress is stored.
type CampaignConfig struct {
	Tag               string        `mapstructure:"tag"`
	Namespace         string        `mapstructure:"namespace"`
	FeedLimit         int           `mapstructure:"feedLimit"`
	LockTTL           time.Duration `mapstructure:"lockTTL"`
	TagCacheTTL       time.Duration `mapstructure:"tagCacheTTL"`
	PendingClaimStale time.Duration `mapstructure:"pendingClaimStale"`
}

func DefaultCampaignConfig() CampaignConfig {
	return CampaignConfig{
		Tag:               "campaign",
		Namespace:         "campaign",
		FeedLimit:         50,
		LockTTL:           10 * time.Second,
		TagCacheTTL:       5 * time.Minute,
		PendingClaimStale: 2 * time.Minute,
	}
}

type CampaignConfigHolder struct {
	current atomic.Value // holds CampaignConfig
}

// NewStaticCampaignConfigHolder returns a holder that never reloads.
func NewStaticCampaignConfigHolder(cfg CampaignConfig) *CampaignConfigHolder {
	holder := &CampaignConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func NewCampaignConfigHolder() (*CampaignConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("campaign")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/campaignbridge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAMPAIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCampaignConfig()
	v.SetDefault("campaign.tag", defaults.Tag)
	v.SetDefault("campaign.namespace", defaults.Namespace)
	v.SetDefault("campaign.feedLimit", defaults.FeedLimit)
	v.SetDefault("campaign.lockTTL", defaults.LockTTL)
	v.SetDefault("campaign.tagCacheTTL", defaults.TagCacheTTL)
	v.SetDefault("campaign.pendingClaimStale", defaults.PendingClaimStale)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg CampaignConfig
	if err := v.UnmarshalKey("campaign", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateCampaignConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CampaignConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated CampaignConfig
			if err := v.UnmarshalKey("campaign", &updated); err != nil {
				log.Printf("[campaign-config] reload failed: %v", err)
				return
			}
			updated = updated.withDefaults()
			if err := validateCampaignConfig(updated); err != nil {
				log.Printf("[campaign-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[campaign-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *CampaignConfigHolder) Get() CampaignConfig {
	if h == nil {
		return DefaultCampaignConfig()
	}
	cfg, ok := h.current.Load().(CampaignConfig)
	if !ok {
		return DefaultCampaignConfig()
	}
	return cfg
}

func (c CampaignConfig) withDefaults() CampaignConfig {
	defaults := DefaultCampaignConfig()
	c.Tag = strings.TrimSpace(c.Tag)
	if c.Tag == "" {
		c.Tag = defaults.Tag
	}
	c.Namespace = strings.TrimSpace(c.Namespace)
	if c.Namespace == "" {
		c.Namespace = defaults.Namespace
	}
	if c.FeedLimit <= 0 {
		c.FeedLimit = defaults.FeedLimit
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.TagCacheTTL <= 0 {
		c.TagCacheTTL = defaults.TagCacheTTL
	}
	if c.PendingClaimStale <= 0 {
		c.PendingClaimStale = defaults.PendingClaimStale
	}
	return c
}

func validateCampaignConfig(cfg CampaignConfig) error {
	if strings.ContainsAny(cfg.Tag, ",") {
		return errors.New("campaign.tag must be a single tag")
	}
	if cfg.FeedLimit > 250 {
		return errors.New("campaign.feedLimit cannot exceed 250")
	}
	return nil
}
