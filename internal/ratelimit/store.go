package ratelimit

import (
	"context"
	"time"
)

// CounterStore is a shared counter table, such as the SQL database.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, error)
}

// Shared backs counters with a CounterStore so every server instance
// sees the same windows.
type Shared struct {
	store CounterStore
	now   func() time.Time
}

// NewShared returns a limiter over store.
func NewShared(store CounterStore) *Shared {
	return &Shared{store: store, now: time.Now}
}

// Allow counts one request against rule for key.
func (s *Shared) Allow(ctx context.Context, key string, rule Rule) (Result, error) {
	count, resetAt, err := s.store.IncrementCounter(ctx, bucket(rule, key), rule.Limit, rule.Window, s.now())
	if err != nil {
		return Result{}, err
	}
	return result(count, rule, resetAt), nil
}
