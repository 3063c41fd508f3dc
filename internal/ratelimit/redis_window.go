package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/opensmile/internal/clock"
)

const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

// RedisWindow shares fixed-window counters between processes.
type RedisWindow struct {
	client *redis.Client
	script *redis.Script
	clock  clock.Clock
	prefix string
}

func NewRedisWindow(client *redis.Client, c clock.Clock) *RedisWindow {
	if client == nil {
		return nil
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &RedisWindow{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		clock:  c,
		prefix: "ratelimit:",
	}
}

func (r *RedisWindow) Hit(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	if r == nil || r.client == nil {
		return Decision{}, errors.New("redis rate limit store not configured")
	}
	if err := validateHit(key, max, window); err != nil {
		return Decision{}, err
	}

	res, err := r.script.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 2 {
		return Decision{}, errors.New("invalid rate limit script response")
	}

	count := int(res[0])
	ttl := time.Duration(res[1]) * time.Millisecond
	resetAt := r.clock.Now().Add(ttl)

	if count > max {
		return Decision{
			Allowed:    false,
			Limit:      max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: ttl,
		}, nil
	}
	return Decision{
		Allowed:   true,
		Limit:     max,
		Remaining: max - count,
		ResetAt:   resetAt,
	}, nil
}
