// Package ratelimit implements a fixed-window request limiter with
// pluggable counter storage. The Redis-backed store shares counters across
// replicas; the in-memory store serves tests and single-node deployments.
package ratelimit

import (
	"context"
	"time"
)

// Store counts hits per key within a window.
type Store interface {
	// Incr increments the counter for key, setting its expiry to window on
	// first increment, and returns the post-increment count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Config bounds the number of requests per key per window.
type Config struct {
	Limit  int64
	Window time.Duration
}

// Limiter applies a fixed-window limit over a Store.
type Limiter struct {
	store Store
	cfg   Config
}

// New creates a Limiter.
func New(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, ErrInvalidConfig
	}
	return &Limiter{store: store, cfg: cfg}, nil
}

// Allow reports whether the request identified by key is within the limit.
// Store failures are returned to the caller; the policy for failing open or
// closed belongs to the call site.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.store.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		return false, err
	}
	return count <= l.cfg.Limit, nil
}
