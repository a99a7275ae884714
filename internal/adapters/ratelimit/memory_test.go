package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiter_RejectsAfterLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := limiter.Allow(ctx, "login:10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 3-i, d.Remaining)
	}

	d, err := limiter.Allow(ctx, "login:10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)

	other, err := limiter.Allow(ctx, "refresh:10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are independent")
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "k", 1, time.Minute)
	d, _ := limiter.Allow(ctx, "k", 1, time.Minute)
	require.False(t, d.Allowed)

	clock.Advance(time.Minute)

	d, err := limiter.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestMemoryLimiter_ConcurrentAllowsExactlyLimit(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	const limit = 25
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(ctx, "k", limit, time.Hour)
			assert.NoError(t, err)
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), allowed.Load())
}

func TestMemoryLimiter_PurgeStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "short", 5, time.Second)
	_, _ = limiter.Allow(ctx, "long", 5, time.Hour)
	require.Equal(t, 2, limiter.Len())

	clock.Advance(time.Minute)

	n, err := limiter.PurgeStale(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, limiter.Len())
}

func TestMemoryLimiter_PurgeDuringAllowKeepsCount(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}

	var limiter *MemoryLimiter
	var armed atomic.Bool
	purged := make(chan int64, 1)

	// On the armed call a sweep races the in-flight request for the stale key.
	now := func() time.Time {
		if armed.CompareAndSwap(true, false) {
			sweepAt := clock.Now()
			done := make(chan struct{})
			go func() {
				n, _ := limiter.PurgeStale(ctx, sweepAt)
				purged <- n
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(50 * time.Millisecond):
			}
		}
		return clock.Now()
	}
	limiter = NewMemoryLimiter(WithClock(now))

	d, err := limiter.Allow(ctx, "login:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	clock.Advance(2 * time.Minute)
	armed.Store(true)

	d, err = limiter.Allow(ctx, "login:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed, "the old window has expired")

	assert.Zero(t, <-purged, "the sweep must not drop a bucket that was just counted")
	assert.Equal(t, 1, limiter.Len())

	d, err = limiter.Allow(ctx, "login:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "the request counted during the sweep still counts")
}
