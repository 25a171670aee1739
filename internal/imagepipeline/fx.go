package imagepipeline

import (
	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("imagepipeline",
	fx.Provide(providePolicy),
	fx.Provide(New),
)

func providePolicy(cfg config.Config, log *zap.Logger) (*PolicyHolder, error) {
	return NewPolicyHolder(cfg.Profile.ImagePolicyPath, log)
}
