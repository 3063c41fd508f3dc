package assistant

import "go.uber.org/fx"

var Module = fx.Module("assistant",
	fx.Provide(NewStubScorer, New),
)
