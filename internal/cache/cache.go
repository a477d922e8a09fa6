// Package cache keeps user projections in Redis so presence lookups and
// conversation listings skip the users table on the hot path.
package cache

import (
	"context"
	"time"
)

// Backend is the key-value store projections live in. Missing keys are
// reported through the found flag, never as an error.
type Backend interface {
	Load(ctx context.Context, key string) (value []byte, found bool, err error)
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, keys ...string) error
}
