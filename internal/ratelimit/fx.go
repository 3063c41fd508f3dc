package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/opensmile/internal/clock"
	"github.com/smallbiznis/opensmile/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		func(c clock.Clock) *Window { return NewWindow(c) },
		ProvideStore,
		NewLimiter,
		ProvideJobLocker,
	),
	fx.Invoke(StartSweeper),
)

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func ProvideStore(cfg config.Config, window *Window, client *redis.Client, c clock.Clock, log *zap.Logger) Store {
	if cfg.RateLimitBackend == config.RateLimitBackendRedis {
		if client != nil {
			return NewRedisWindow(client, c)
		}
		log.Warn("RATE_LIMIT_BACKEND=redis without REDIS_ADDR, using in-memory windows")
	}
	return window
}

func ProvideJobLocker(client *redis.Client) JobLocker {
	if client == nil {
		return LocalLocker{}
	}
	return NewLocker(client)
}

// StartSweeper runs the in-memory window sweep for the lifetime of the app.
func StartSweeper(lc fx.Lifecycle, window *Window) {
	startSweeper(lc, window, DefaultSweepInterval)
}

func startSweeper(lc fx.Lifecycle, window *Window, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				window.Run(ctx, interval)
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stop.Done():
				return stop.Err()
			}
		},
	})
}
