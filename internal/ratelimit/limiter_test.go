package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Hit(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func newTestLimiter(store Store, limits config.RateLimits) *Limiter {
	return NewLimiter(LimiterParams{
		Store:   store,
		Budgets: config.NewStaticRateLimits(limits),
	})
}

func TestLimiterUsesClassBudget(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	l := newTestLimiter(NewWindow(clk), config.RateLimits{
		config.RateLimitLogin: {Max: 2, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, config.RateLimitLogin, "owner@example.com")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, config.RateLimitLogin, "owner@example.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// Same identity under another class has its own window.
	d, err = l.Allow(ctx, config.RateLimitLeadSearch, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiterUnknownClass(t *testing.T) {
	l := newTestLimiter(NewWindow(nil), nil)
	_, err := l.Allow(context.Background(), "bulk_delete", "u1")
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	l := newTestLimiter(failingStore{}, nil)
	d, err := l.Allow(context.Background(), config.RateLimitWebhook, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
