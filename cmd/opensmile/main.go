package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/analytics"
	"github.com/smallbiznis/opensmile/internal/appointment"
	"github.com/smallbiznis/opensmile/internal/assistant"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/auth"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	"github.com/smallbiznis/opensmile/internal/enrichment"
	"github.com/smallbiznis/opensmile/internal/interaction"
	"github.com/smallbiznis/opensmile/internal/lead"
	"github.com/smallbiznis/opensmile/internal/migration"
	"github.com/smallbiznis/opensmile/internal/observability"
	"github.com/smallbiznis/opensmile/internal/practice"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	"github.com/smallbiznis/opensmile/internal/scheduler"
	"github.com/smallbiznis/opensmile/internal/server"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/internal/webhook"
	"github.com/smallbiznis/opensmile/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redact.Module,
		tenant.Module,
		access.Module,
		ratelimit.Module,

		// Domains
		auth.Module,
		practice.Module,
		lead.Module,
		interaction.Module,
		appointment.Module,
		enrichment.Module,
		analytics.Module,
		assistant.Module,
		webhook.Module,

		// Background jobs and HTTP
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
