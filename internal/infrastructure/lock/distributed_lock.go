package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis distributed lock: SET key value NX EX for acquire, Lua check-and-del
// for release so a holder whose lock already expired cannot delete the next
// holder's lock.

var ErrLockFailed = errors.New("failed to acquire distributed lock")

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // holder token, verified on release
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a single non-blocking acquire.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock acquires with retries, giving up after maxRetries attempts.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if this instance still holds it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewSettlementLock locks a single gateway order code while a webhook
// delivery for it is being processed.
func NewSettlementLock(client *redis.Client, orderCode int64, token string) *DistributedLock {
	key := fmt.Sprintf("payment:lock:ordercode:%d", orderCode)
	return NewDistributedLock(client, key, token, 30*time.Second)
}
