package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rate float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func (m *MemoryLimiter) backdate(key string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[key].lastSeen = time.Now().Add(-age)
}

func TestMemoryLimiterAllowsBurst(t *testing.T) {
	m := newTestLimiter(t, 10, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := m.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}

	ok, err := m.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok, "request past the burst is rejected")
}

func TestMemoryLimiterRefillsOverTime(t *testing.T) {
	// 1000 rps refills a token per millisecond.
	m := newTestLimiter(t, 1000, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = m.Allow(ctx, "203.0.113.7")
	}
	ok, err := m.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = m.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok, "tokens come back after waiting")
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	m := newTestLimiter(t, 1000, 3)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "203.0.113.7")
	// An hour idle must not accumulate more than burst tokens.
	m.backdate("203.0.113.7", time.Hour)

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, ok, "request %d after idle", i)
	}
	ok, err := m.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok, "burst is the hard ceiling regardless of idle time")
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := newTestLimiter(t, 10, 1)
	ctx := context.Background()

	ok, err := m.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Allow(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.True(t, ok, "an exhausted neighbor does not throttle other clients")
}

func TestMemoryLimiterConcurrentCallers(t *testing.T) {
	m := newTestLimiter(t, 100, 50)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(ctx, "shared")
				if err != nil {
					t.Error(err)
					return
				}
				if ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 100 racing requests against a burst of 50.
	assert.GreaterOrEqual(t, allowed, 1)
	assert.LessOrEqual(t, allowed, 50)
}

func TestMemoryLimiterEvictsIdleBuckets(t *testing.T) {
	m := newTestLimiter(t, 10, 5)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "idle")
	_, _ = m.Allow(ctx, "active")
	m.backdate("idle", idleThreshold+time.Minute)

	m.evictIdle()

	m.mu.Lock()
	_, idleKept := m.buckets["idle"]
	_, activeKept := m.buckets["active"]
	m.mu.Unlock()

	assert.False(t, idleKept, "idle bucket is dropped")
	assert.True(t, activeKept, "active bucket survives the sweep")
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "anything")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, l.Close())
}
