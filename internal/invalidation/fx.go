package invalidation

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directory/internal/config"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("view.invalidation",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config  config.Config
	Redis   *redis.Client `optional:"true"`
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func New(p Params) Invalidator {
	log := p.Log.Named("view.invalidation")
	if p.Redis != nil {
		return NewRedisInvalidator(p.Redis, p.Config.Profile.InvalidationPrefix, log, p.Metrics)
	}
	return NewLogInvalidator(log, p.Metrics)
}
