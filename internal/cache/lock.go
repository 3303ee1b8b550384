package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out per-resource locks across processes. A nil client gives
// no-op locks, which is fine for a single process since the store's
// transaction still rejects overlapping commits.
type Locker struct {
	redis      *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{redis: client, ttl: ttl, retryDelay: 25 * time.Millisecond}
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	redis *redis.Client
	key   string
	token string
}

func lockKey(resourceID string) string {
	return fmt.Sprintf("%s:lock:resource:%s", keyPrefix, resourceID)
}

// Acquire retries until the lock is free, ctx is done, or one TTL has passed.
func (l *Locker) Acquire(ctx context.Context, resourceID string) (*Lock, error) {
	if l == nil || l.redis == nil {
		return &Lock{}, nil
	}

	key := lockKey(resourceID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return &Lock{redis: l.redis, key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

// Release frees the lock if it is still ours.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.redis == nil || lk.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, lk.redis, []string{lk.key}, lk.token).Err()
	lk.token = ""
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
