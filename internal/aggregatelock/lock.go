package aggregatelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the lock could not be taken within the wait budget.
var ErrBusy = errors.New("aggregate is locked by another writer")

// Locker serializes writers of one aggregate. release must be called once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// BusinessKey is the lock key of one business aggregate.
func BusinessKey(id snowflake.ID) string {
	return "business:" + id.String()
}

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker holds locks as SET NX keys with a per-holder token, so a
// holder whose TTL lapsed cannot release someone else's lock. A held lock is
// extended every ttl/3 until it is released, so writes that outlast ttl
// (slow image uploads) stay serialized.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	extend *redis.Script
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		extend: redis.NewScript(lockExtendScript),
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if l.ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.redisKey(key), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.redisKey(key)}, token).Err()
}

// Acquire polls TryLock until it succeeds, ctx ends or the wait budget runs out.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			stop := l.keepAlive(context.WithoutCancel(ctx), key, token)
			var once sync.Once
			return func() {
				once.Do(func() {
					stop()
					releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
					defer cancel()
					_ = l.Release(releaseCtx, key, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrBusy
		case <-time.After(l.retry):
		}
	}
}

// Extend resets the TTL of key when token still holds it.
func (l *RedisLocker) Extend(ctx context.Context, key, token string) (bool, error) {
	n, err := l.extend.Run(ctx, l.client, []string{l.redisKey(key)}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive extends the lock until the returned stop func is called or the
// token no longer holds the key.
func (l *RedisLocker) keepAlive(ctx context.Context, key, token string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := l.Extend(ctx, key, token)
				if err == nil && !held {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (l *RedisLocker) redisKey(key string) string {
	if l.prefix == "" {
		return "lock:" + key
	}
	return l.prefix + ":lock:" + key
}
