package business

import (
	"github.com/smallbiznis/directory/internal/business/ownership"
	"github.com/smallbiznis/directory/internal/business/repository"
	"github.com/smallbiznis/directory/internal/business/service"
	"github.com/smallbiznis/directory/internal/business/validation"
	"github.com/smallbiznis/directory/internal/imagepipeline"
	"go.uber.org/fx"
)

var Module = fx.Module("business.service",
	fx.Provide(repository.Provide),
	fx.Provide(validation.New),
	fx.Provide(ownership.New),
	fx.Provide(func(p *imagepipeline.Pipeline) service.ImageResolver { return p }),
	fx.Provide(service.New),
)
