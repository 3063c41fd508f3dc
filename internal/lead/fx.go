package lead

import (
	"github.com/smallbiznis/opensmile/internal/lead/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lead.service",
	fx.Provide(service.New),
)
