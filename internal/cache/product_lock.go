package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotObtained is returned when another worker holds the product lock
// for the whole wait window.
var ErrLockNotObtained = errors.New("product lock not obtained")

// ProductLocker serializes processing of a single catalog item across
// replicas so duplicate triggers do not generate (and debit) twice.
type ProductLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewProductLocker creates a locker holding locks for ttl and waiting up to
// wait for a busy lock.
func NewProductLocker(redis *RedisClient, ttl, wait time.Duration) *ProductLocker {
	return &ProductLocker{
		locker: redislock.New(redis.Client()),
		ttl:    ttl,
		wait:   wait,
	}
}

func lockKey(shop, productID string) string {
	return fmt.Sprintf("lock:product:%s:%s", shop, productID)
}

// Lock obtains the lock for (shop, productID). The returned release func is
// safe to call once the work is done.
func (l *ProductLocker) Lock(ctx context.Context, shop, productID string) (func(), error) {
	const step = 100 * time.Millisecond

	retries := int(l.wait / step)
	lock, err := l.locker.Obtain(ctx, lockKey(shop, productID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(step), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain product lock: %w", err)
	}

	return func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
