package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/data/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireSingleOwnerAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		client, err := kv.Connect(ctx, &config.Redis{Addr: mr.Addr()})
		require.NoError(t, err)
		l := New(kv.NewRedisStore(client, "ps"), nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.TryAcquire(ctx, "enrich:place-1", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestTryAcquireExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := kv.Connect(ctx, &config.Redis{Addr: mr.Addr()})
	require.NoError(t, err)

	a := New(kv.NewRedisStore(client, "ps"), nil)
	b := New(kv.NewRedisStore(client, "ps"), nil)

	_, ok := a.TryAcquire(ctx, "k", time.Second)
	require.True(t, ok)
	_, ok = b.TryAcquire(ctx, "k", time.Second)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok = b.TryAcquire(ctx, "k", time.Second)
	assert.True(t, ok, "a crashed owner is bounded by the ttl")
}

func TestLocalFastPath(t *testing.T) {
	store := kv.NewMemoryStore()
	l := New(store, nil)
	ctx := context.Background()

	lease, ok := l.TryAcquire(ctx, "k", time.Minute)
	require.True(t, ok)
	_, ok = l.TryAcquire(ctx, "k", time.Minute)
	assert.False(t, ok)

	l.Release(ctx, lease)
	_, ok = l.TryAcquire(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestReleaseKeepsForeignOwner(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	a := New(store, nil)
	b := New(store, nil)

	lease, ok := a.TryAcquire(ctx, "k", time.Minute)
	require.True(t, ok)
	b.Release(ctx, &Lease{Key: "k", Owner: "someone-else"})

	_, ok = b.TryAcquire(ctx, "k", time.Minute)
	assert.False(t, ok)
	a.Release(ctx, lease)
	_, ok = b.TryAcquire(ctx, "k", time.Minute)
	assert.True(t, ok)
}

type failingStore struct{ kv.Store }

func (failingStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestStoreFailureDegrades(t *testing.T) {
	l := New(failingStore{}, nil)
	lease, ok := l.TryAcquire(context.Background(), "k", time.Minute)
	require.True(t, ok)
	assert.True(t, lease.Degraded)
	l.Release(context.Background(), lease)
}
