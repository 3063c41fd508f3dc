package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestWindowRejectsCallOverBudget(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	w := NewWindow(clk)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d, err := w.Hit(ctx, "webhook:203.0.113.7", 100, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i+1)
	}

	clk.Advance(59 * time.Second)
	d, err := w.Hit(ctx, "webhook:203.0.113.7", 100, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Second, d.RetryAfter)
}

func TestWindowAcceptsAfterRollover(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	w := NewWindow(clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := w.Hit(ctx, "login:a@example.com", 5, 15*time.Minute)
		require.NoError(t, err)
	}
	d, err := w.Hit(ctx, "login:a@example.com", 5, 15*time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	clk.Advance(15 * time.Minute)
	d, err = w.Hit(ctx, "login:a@example.com", 5, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestWindowKeysAreIndependent(t *testing.T) {
	w := NewWindow(clock.NewFakeClock(time.Unix(0, 0)))
	ctx := context.Background()

	d, err := w.Hit(ctx, "login:a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = w.Hit(ctx, "login:b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestWindowRejectsInvalidHit(t *testing.T) {
	w := NewWindow(nil)
	_, err := w.Hit(context.Background(), "", 1, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = w.Hit(context.Background(), "k", 0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = w.Hit(context.Background(), "k", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestWindowSweepDropsExpiredEntries(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(0, 0))
	w := NewWindow(clk)
	ctx := context.Background()

	_, _ = w.Hit(ctx, "short", 1, time.Minute)
	_, _ = w.Hit(ctx, "long", 1, time.Hour)
	require.Equal(t, 2, w.Len())

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, w.Sweep())
	assert.Equal(t, 1, w.Len())
}

func TestWindowConcurrentHitsNeverExceedBudget(t *testing.T) {
	w := NewWindow(clock.NewFakeClock(time.Unix(0, 0)))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := w.Hit(ctx, "lead_search:u1", 100, time.Hour)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, allowed)
}

func TestSweeperStopsWithLifecycle(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	w := NewWindow(clk)
	ctx := context.Background()
	lc := fxtest.NewLifecycle(t)

	startSweeper(lc, w, time.Millisecond)
	lc.RequireStart()

	_, err := w.Hit(ctx, "login:203.0.113.7", 5, time.Minute)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return w.Len() == 0 }, time.Second, time.Millisecond)

	lc.RequireStop()

	_, err = w.Hit(ctx, "login:203.0.113.7", 5, time.Minute)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, w.Len(), "sweeps continued after stop")
}
