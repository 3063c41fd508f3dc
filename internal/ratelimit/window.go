package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/opensmile/internal/clock"
)

const DefaultSweepInterval = time.Minute

type windowEntry struct {
	count   int
	resetAt time.Time
}

// Window is the process-local fixed-window store. Counts are lost on restart
// and are not shared between processes.
type Window struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]*windowEntry
}

func NewWindow(c clock.Clock) *Window {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Window{
		clock:   c,
		entries: make(map[string]*windowEntry),
	}
}

func (w *Window) Hit(_ context.Context, key string, max int, window time.Duration) (Decision, error) {
	if err := validateHit(key, max, window); err != nil {
		return Decision{}, err
	}

	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = &windowEntry{count: 1, resetAt: now.Add(window)}
		w.entries[key] = entry
		return Decision{
			Allowed:   true,
			Limit:     max,
			Remaining: max - 1,
			ResetAt:   entry.resetAt,
		}, nil
	}

	if entry.count >= max {
		return Decision{
			Allowed:    false,
			Limit:      max,
			Remaining:  0,
			ResetAt:    entry.resetAt,
			RetryAfter: entry.resetAt.Sub(now),
		}, nil
	}

	entry.count++
	return Decision{
		Allowed:   true,
		Limit:     max,
		Remaining: max - entry.count,
		ResetAt:   entry.resetAt,
	}, nil
}

// Sweep drops expired windows and returns how many were removed.
func (w *Window) Sweep() int {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for key, entry := range w.entries {
		if !now.Before(entry.resetAt) {
			delete(w.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}
