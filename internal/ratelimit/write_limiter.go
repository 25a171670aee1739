package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
)

const keyProfileWrites = "%s:ratelimit:writes:%s"

// WriteLimiter bounds how often one owner may create or update profiles.
// A nil limiter allows everything.
type WriteLimiter struct {
	bucket *TokenBucket
	prefix string
	rate   float64
	burst  int
}

type Params struct {
	fx.In

	Cfg   config.Config
	Redis *redis.Client `optional:"true"`
}

func NewWriteLimiter(p Params) *WriteLimiter {
	perMinute := p.Cfg.Profile.WritesPerMinute
	burst := p.Cfg.Profile.WriteBurst
	if p.Redis == nil || perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &WriteLimiter{
		bucket: NewTokenBucket(p.Redis),
		prefix: strings.TrimSpace(p.Cfg.Profile.InvalidationPrefix),
		rate:   float64(perMinute) / 60,
		burst:  burst,
	}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowOwner takes one write token for ownerID.
func (l *WriteLimiter) AllowOwner(ctx context.Context, ownerID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyProfileWrites, l.prefix, strings.TrimSpace(ownerID))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
