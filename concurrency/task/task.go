// Package task runs request-scoped background computations whose handles
// are collected and drained before the request returns.
package task

import (
	"context"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Group owns a set of tasks sharing one cancellable context.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	pending atomic.Int32
	drained atomic.Bool
}

// NewGroup creates a group whose tasks are cancelled with parent or on Drain.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Handle is the eventual result of one task.
type Handle[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go starts fn in g. Panics are converted to errors on the handle.
func Go[T any](g *Group, fn func(ctx context.Context) (T, error)) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}
	if g.drained.Load() {
		h.err = context.Canceled
		close(h.done)
		return h
	}

	g.pending.Add(1)
	g.wg.Go(func() {
		defer g.pending.Add(-1)
		defer close(h.done)

		var pc panics.Catcher
		pc.Try(func() {
			h.val, h.err = fn(g.ctx)
		})
		if r := pc.Recovered(); r != nil {
			h.err = r.AsError()
		}
	})
	return h
}

// Await waits for the task or ctx, whichever ends first.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the task finished.
func (h *Handle[T]) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Pending returns the number of running tasks.
func (g *Group) Pending() int {
	return int(g.pending.Load())
}

// Drain cancels every task and waits for all of them. Task errors are
// discarded. Drain is safe to call more than once.
func (g *Group) Drain() {
	g.drained.Store(true)
	g.cancel()
	g.wg.Wait()
}

// Wait waits for every task without cancelling them.
func (g *Group) Wait() {
	g.wg.Wait()
}
