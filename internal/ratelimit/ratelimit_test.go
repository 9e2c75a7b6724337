package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductLockDisabledWithoutRedis(t *testing.T) {
	lock := NewProductLock(nil)
	assert.False(t, lock.Enabled())

	release, err := lock.Acquire(context.Background(), "gid://shopify/Product/1", time.Second)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}

func TestCheckoutLimiterDisabledAllows(t *testing.T) {
	limiter := NewCheckoutLimiter(nil, config.Config{})
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestProductLockKey(t *testing.T) {
	assert.Equal(t, "campaignbridge:lock:product:gid://shopify/Product/555", ProductLockKey("gid://shopify/Product/555"))
}

func TestRetryAfter(t *testing.T) {
	assert.Zero(t, retryAfter(true, 0, 1))
	assert.Equal(t, 500*time.Millisecond, retryAfter(false, 0.5, 1))
	assert.Equal(t, 2*time.Second, retryAfter(false, 0, 0.5))
}

func TestCasts(t *testing.T) {
	assert.EqualValues(t, 1, castToInt(int64(1)))
	assert.EqualValues(t, 3, castToInt("3"))
	assert.InDelta(t, 2.5, castToFloat("2.5"), 1e-9)
	assert.InDelta(t, 4, castToFloat(int64(4)), 1e-9)
	assert.Zero(t, castToFloat(nil))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))
}
