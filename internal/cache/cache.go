// Package cache provides the pluggable counter/cache abstraction behind
// round-robin assignment and duplicate detection.
//
// Production deployments use the Redis-backed Store for cross-instance
// coordination; the in-memory Store keeps a single process fully functional
// when Redis is absent. Callers never branch on which one they got; the
// interface is the contract, and callers treat any error as "unavailable"
// and take their documented fallback path rather than failing the request.
package cache

import (
	"context"
	"time"
)

// Store is an expiring key/value store with an atomic counter primitive.
// Implementations must be safe for concurrent use.
type Store interface {
	// Increment atomically increments the integer counter at key and
	// returns the new value. A fresh counter starts at 1. The TTL is
	// reapplied on every increment so hot counters expire only after
	// going quiet.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the value at key. The second result is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key (best-effort; deleting a missing key is not an error).
	Delete(ctx context.Context, key string) error

	// Close releases resources (connections, cleanup goroutines).
	Close() error
}

// Noop discards writes and reports every key absent. Used in tests that
// exercise the degraded path.
type Noop struct{}

// Increment always reports a fresh counter.
func (Noop) Increment(context.Context, string, time.Duration) (int64, error) { return 1, nil }

// Get reports every key absent.
func (Noop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

// Set discards the value.
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }

// Delete is a no-op.
func (Noop) Delete(context.Context, string) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
