// Package ratelimit holds the in-process fixed-window limiter used when a
// single instance serves the authentication endpoints.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

// window is immutable once published; only count moves.
type window struct {
	start time.Time
	reset time.Time
	count atomic.Int64
}

type bucket struct {
	current atomic.Pointer[window]
}

// MemoryLimiter counts requests per key in fixed windows. The key map is
// guarded by a RWMutex, the counters themselves are lock-free.
type MemoryLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

var (
	_ ports.RateLimiter = (*MemoryLimiter)(nil)
	_ ports.StalePurger = (*MemoryLimiter)(nil)
)

type Option func(*MemoryLimiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

func NewMemoryLimiter(opts ...Option) *MemoryLimiter {
	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request against key. The key map stays read-locked while
// the request is counted, so PurgeStale cannot detach the bucket mid-count.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, windowSize time.Duration) (domain.RateLimitDecision, error) {
	b := l.acquire(key)
	defer l.mu.RUnlock()

	now := l.now()
	for {
		w := b.current.Load()
		if w == nil || !now.Before(w.reset) {
			next := &window{start: now, reset: now.Add(windowSize)}
			next.count.Store(1)
			if !b.current.CompareAndSwap(w, next) {
				continue
			}
			return decision(1, limit, next.reset), nil
		}
		return decision(w.count.Add(1), limit, w.reset), nil
	}
}

// PurgeStale drops keys whose window ended before the given time.
func (l *MemoryLimiter) PurgeStale(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for key, b := range l.buckets {
		w := b.current.Load()
		if w == nil || w.reset.Before(before) {
			delete(l.buckets, key)
			n++
		}
	}
	return n, nil
}

// Run purges expired windows every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = l.PurgeStale(ctx, l.now())
		case <-ctx.Done():
			return
		}
	}
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// acquire returns the bucket for key with l.mu read-locked. The caller
// releases the read lock.
func (l *MemoryLimiter) acquire(key string) *bucket {
	l.mu.RLock()
	for {
		if b, ok := l.buckets[key]; ok {
			return b
		}
		l.mu.RUnlock()

		l.mu.Lock()
		if _, ok := l.buckets[key]; !ok {
			l.buckets[key] = &bucket{}
		}
		l.mu.Unlock()

		l.mu.RLock()
	}
}

func decision(count int64, limit int, resetAt time.Time) domain.RateLimitDecision {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}
