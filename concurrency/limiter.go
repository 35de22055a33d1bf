// Package concurrency holds bounded-concurrency helpers.
package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Limiter caps concurrent executions with a counting semaphore.
type Limiter struct {
	max       int32
	current   atomic.Int32
	semaphore chan struct{}

	totalExecutions atomic.Int64
	rejectedCount   atomic.Int64
}

// NewLimiter creates a limiter allowing max concurrent holders.
func NewLimiter(max int32) (*Limiter, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max concurrent must be positive, got: %d", max)
	}
	return &Limiter{
		max:       max,
		semaphore: make(chan struct{}, max),
	}, nil
}

// Acquire blocks until a slot is free or ctx ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.semaphore <- struct{}{}:
		l.current.Add(1)
		l.totalExecutions.Add(1)
		return nil
	case <-ctx.Done():
		l.rejectedCount.Add(1)
		return fmt.Errorf("failed to acquire concurrency slot: %w", ctx.Err())
	}
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.current.Add(1)
		l.totalExecutions.Add(1)
		return true
	default:
		l.rejectedCount.Add(1)
		return false
	}
}

// Release frees a slot. Releasing more than acquired is a no-op.
func (l *Limiter) Release() {
	select {
	case <-l.semaphore:
		l.current.Add(-1)
	default:
	}
}

// Available returns the number of free slots.
func (l *Limiter) Available() int32 {
	return l.max - l.current.Load()
}

// GetMetrics returns current counters.
func (l *Limiter) GetMetrics() map[string]int64 {
	return map[string]int64{
		"current":          int64(l.current.Load()),
		"total_executions": l.totalExecutions.Load(),
		"rejected_count":   l.rejectedCount.Load(),
	}
}
