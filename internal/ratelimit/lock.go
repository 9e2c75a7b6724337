package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	keyProductLock   = "campaignbridge:lock:product:"
	lockPollInterval = 50 * time.Millisecond
)

var ErrLockTimeout = errors.New("lock_timeout")

type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// ProductLock serializes read-modify-write cycles on one product's progress.
type ProductLock struct {
	locker *Locker
}

func NewProductLock(client *redis.Client) *ProductLock {
	return &ProductLock{locker: NewLocker(client)}
}

func (p *ProductLock) Enabled() bool {
	return p != nil && p.locker != nil
}

// Acquire polls until the lock is held or ttl elapses. The returned release
// func is safe to call once the caller is done.
func (p *ProductLock) Acquire(ctx context.Context, productGID string, ttl time.Duration) (func(context.Context) error, error) {
	if !p.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	key := ProductLockKey(productGID)
	deadline := time.Now().Add(ttl)
	for {
		token, ok, err := p.locker.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func(releaseCtx context.Context) error {
				return p.locker.Release(releaseCtx, key, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func ProductLockKey(productGID string) string {
	return keyProductLock + productGID
}
