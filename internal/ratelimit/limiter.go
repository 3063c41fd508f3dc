package ratelimit

import (
	"context"
	"strings"

	"github.com/smallbiznis/opensmile/internal/config"
	obsmetrics "github.com/smallbiznis/opensmile/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type LimiterParams struct {
	fx.In

	Store   Store
	Budgets *config.RateLimitHolder
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Limiter applies the configured budget for an operation class to one caller identity.
type Limiter struct {
	store   Store
	budgets *config.RateLimitHolder
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewLimiter(p LimiterParams) *Limiter {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		store:   p.Store,
		budgets: p.Budgets,
		log:     log.Named("ratelimit"),
		metrics: p.Metrics,
	}
}

// Allow counts one call for identity under class. A store failure fails
// open: the limiter deters abuse but is not an access boundary.
func (l *Limiter) Allow(ctx context.Context, class, identity string) (Decision, error) {
	budget, ok := l.budgets.Budget(class)
	if !ok {
		return Decision{}, ErrUnknownClass
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "unknown"
	}

	decision, err := l.store.Hit(ctx, class+":"+identity, budget.Max, budget.Window)
	if err != nil {
		l.log.Warn("rate limit store unavailable, allowing request",
			zap.String("class", class),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: budget.Max, Remaining: budget.Max}, nil
	}

	if decision.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, class)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, class)
	}
	return decision, nil
}
