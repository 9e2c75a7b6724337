package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/config"
)

// Config controls which background jobs run and their defaults.
type Config struct {
	Enabled        bool
	EnabledJobs    []string
	DefaultTimeout time.Duration
	BatchSize      int
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		DefaultTimeout: 30 * time.Second,
		BatchSize:      50,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Scheduler.Enabled
	for _, name := range strings.Split(cfg.Scheduler.Jobs, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out.EnabledJobs = append(out.EnabledJobs, name)
		}
	}
	return out
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaults.DefaultTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
