package aggregatelock

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("aggregate.lock",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// defaultWait bounds how long a writer queues behind another writer.
const defaultWait = 5 * time.Second

func New(p Params) Locker {
	ttl := time.Duration(p.Config.Profile.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	log := p.Log.Named("aggregate.lock")
	if p.Redis != nil {
		log.Info("using redis aggregate locks", zap.Duration("ttl", ttl))
		return NewRedisLocker(p.Redis, p.Config.Profile.InvalidationPrefix, ttl, defaultWait)
	}
	log.Info("using in-process aggregate locks")
	return NewLocalLocker(defaultWait)
}
