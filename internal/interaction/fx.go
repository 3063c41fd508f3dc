package interaction

import (
	"github.com/smallbiznis/opensmile/internal/interaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("interaction.service",
	fx.Provide(service.New),
)
