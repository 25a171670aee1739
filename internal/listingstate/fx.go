package listingstate

import "go.uber.org/fx"

var Module = fx.Module("listingstate.service",
	fx.Provide(NewService),
)
