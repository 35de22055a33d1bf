// Package kv is the shared key-value store used for job state, idempotency
// claims, locks and caches. Every operation is safe for concurrent use and,
// for the Redis backend, atomic across service instances.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("kv: key not found")

// Store is the shared store contract.
type Store interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value with ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces the value at key with next only if the current
	// value equals prev. A nil prev requires the key to be absent.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only if its value equals prev.
	CompareAndDelete(ctx context.Context, key string, prev []byte) (bool, error)
	// Del removes keys.
	Del(ctx context.Context, keys ...string) error
	// Ping checks reachability.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}
