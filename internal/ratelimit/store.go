package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownClass   = errors.New("unknown_rate_limit_class")
	ErrInvalidRequest = errors.New("invalid_rate_limit_request")
	ErrRateLimited    = errors.New("rate_limited")
)

// Decision is the outcome of one counted call against a fixed window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// LimitedError carries the rejecting decision so callers can emit Retry-After.
type LimitedError struct {
	Decision Decision
}

func (e *LimitedError) Error() string { return ErrRateLimited.Error() }

func (e *LimitedError) Unwrap() error { return ErrRateLimited }

// Store counts calls per key in fixed, non-overlapping windows.
type Store interface {
	Hit(ctx context.Context, key string, max int, window time.Duration) (Decision, error)
}

func validateHit(key string, max int, window time.Duration) error {
	if key == "" || max <= 0 || window <= 0 {
		return ErrInvalidRequest
	}
	return nil
}
