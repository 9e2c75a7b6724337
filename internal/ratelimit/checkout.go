package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/campaignbridge/internal/config"
)

const keyCheckoutClient = "campaignbridge:ratelimit:checkout:"

// CheckoutLimiter throttles the public payment endpoints per client address.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCheckoutLimiter(client *redis.Client, cfg config.Config) *CheckoutLimiter {
	if client == nil || cfg.RateLimit.CheckoutRate <= 0 || cfg.RateLimit.CheckoutBurst <= 0 {
		return nil
	}
	return &CheckoutLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.CheckoutRate,
		burst:  cfg.RateLimit.CheckoutBurst,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open when redis errors; checkout must not go down with the limiter.
func (l *CheckoutLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, keyCheckoutClient+strings.TrimSpace(clientKey), l.rate, l.burst)
	if err != nil {
		return &RateLimitResult{Allowed: true}, err
	}
	return res, nil
}
