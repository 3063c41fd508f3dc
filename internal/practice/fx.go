package practice

import (
	"github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/practice/repository"
	"github.com/smallbiznis/opensmile/internal/practice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("practice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s domain.Service) domain.Directory { return s }),
)
