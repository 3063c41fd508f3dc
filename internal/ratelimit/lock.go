package ratelimit

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrEmptyLockKey   = errors.New("lock key is empty")
	ErrInvalidLockTTL = errors.New("lock ttl must be positive")
)

// JobLocker lets one process in the fleet claim a piece of maintenance work
// for a period. Claims are never released early: they expire with their ttl,
// so a claim also records when the work last ran.
type JobLocker interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Locker claims keys with Redis SET NX. The stored value names the holder
// for operators inspecting Redis.
type Locker struct {
	client *redis.Client
	holder string
}

func NewLocker(client *redis.Client) *Locker {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	return &Locker{client: client, holder: host}
}

func (l *Locker) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyLockKey
	}
	if ttl <= 0 {
		return false, ErrInvalidLockTTL
	}
	return l.client.SetNX(ctx, key, l.holder+"/"+ulid.Make().String(), ttl).Result()
}

// LocalLocker grants every claim. It stands in when no Redis is configured,
// where a single process runs the scheduler.
type LocalLocker struct{}

func (LocalLocker) Claim(context.Context, string, time.Duration) (bool, error) { return true, nil }
