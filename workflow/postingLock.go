package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

var ErrPostingLockNotObtained = errors.New("could not obtain posting lock")

// PostingLocker serializes upserts of one natural key across processes.
// A nil client (Redis not configured) degrades to the database unique constraints alone.
type PostingLocker struct {
	Client *redislock.Client
	TTL    time.Duration
	Wait   time.Duration
}

func NewPostingLocker(client *redislock.Client) *PostingLocker {
	return &PostingLocker{
		Client: client,
		TTL:    30 * time.Second,
		Wait:   10 * time.Second,
	}
}

func postingLockKey(kind, businessId, key string) string {
	return fmt.Sprintf("posting:%s:%s:%s", kind, businessId, key)
}

// WithLock runs fn while holding the lock for (kind, businessId, key).
func (l *PostingLocker) WithLock(ctx context.Context, kind, businessId, key string, fn func() error) error {
	if l == nil || l.Client == nil {
		return fn()
	}
	lockKey := postingLockKey(kind, businessId, key)

	waitCtx, cancel := context.WithTimeout(ctx, l.Wait)
	defer cancel()
	lock, err := l.Client.Obtain(waitCtx, lockKey, l.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.ExponentialBackoff(10*time.Millisecond, 500*time.Millisecond), 50),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrPostingLockNotObtained, lockKey)
	} else if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	return fn()
}
