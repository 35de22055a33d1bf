package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReturnsValue(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Drain()

	h := Go(g, func(context.Context) (int, error) { return 42, nil })
	v, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, h.Done())
}

func TestAwaitHonoursCallerContext(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Drain()

	h := Go(g, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDrainCancelsAndWaits(t *testing.T) {
	g := NewGroup(context.Background())
	for i := 0; i < 3; i++ {
		Go(g, func(ctx context.Context) (struct{}, error) {
			<-ctx.Done()
			return struct{}{}, errors.New("ignored")
		})
	}
	assert.Equal(t, 3, g.Pending())

	g.Drain()
	assert.Zero(t, g.Pending())
	g.Drain()

	late := Go(g, func(context.Context) (int, error) { return 1, nil })
	_, err := late.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPanicBecomesError(t *testing.T) {
	g := NewGroup(context.Background())
	h := Go(g, func(context.Context) (int, error) { panic("boom") })
	_, err := h.Await(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	g.Drain()
}
