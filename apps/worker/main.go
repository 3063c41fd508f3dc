// Command worker consumes enrichment jobs from RabbitMQ. The API process
// publishes them when RABBITMQ_URL is set.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opensmile/internal/access"
	"github.com/smallbiznis/opensmile/internal/audit/redact"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	"github.com/smallbiznis/opensmile/internal/enrichment"
	"github.com/smallbiznis/opensmile/internal/lead"
	"github.com/smallbiznis/opensmile/internal/observability"
	"github.com/smallbiznis/opensmile/internal/practice"
	"github.com/smallbiznis/opensmile/internal/tenant"
	"github.com/smallbiznis/opensmile/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redact.Module,
		tenant.Module,
		access.Module,

		// the processor merges findings into leads
		practice.Module,
		lead.Module,

		enrichment.Module,
		enrichment.ConsumerModule,
	)
	app.Run()
}

// Node 2 keeps worker ids disjoint from the API process.
func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}
