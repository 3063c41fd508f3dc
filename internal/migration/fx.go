package migration

import (
	"github.com/smallbiznis/opensmile/internal/config"
	"github.com/smallbiznis/opensmile/internal/seed"
	"github.com/smallbiznis/opensmile/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if db.IsPostgres(conn) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if !cfg.Seed.Allow {
			return nil
		}
		if cfg.IsProduction() {
			log.Warn("ALLOW_SEEDING ignored in production")
			return nil
		}
		return seed.EnsureDevData(conn, seed.Options{
			AdminPassword: cfg.Seed.AdminPassword,
			SalesPassword: cfg.Seed.SalesPassword,
		})
	}),
)
