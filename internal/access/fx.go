package access

import "go.uber.org/fx"

var Module = fx.Module("access.policy",
	fx.Provide(NewEnforcer),
	fx.Provide(NewPolicy),
)
