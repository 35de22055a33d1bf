package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ncobase/placesearch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), &config.Redis{Addr: mr.Addr()})
	require.NoError(t, err)
	s := NewRedisStore(client, "test")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStoreGetSet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
			got, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)

			require.NoError(t, s.Del(ctx, "k"))
			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSetNX(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := s.SetNX(ctx, "k", []byte("a"), time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.SetNX(ctx, "k", []byte("b"), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			got, _ := s.Get(ctx, "k")
			assert.Equal(t, []byte("a"), got)
		})
	}
}

func TestStoreCompareAndSwap(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.CompareAndSwap(ctx, "k", []byte("x"), []byte("y"), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "absent key must not match a non-nil prev")

			ok, err = s.CompareAndSwap(ctx, "k", nil, []byte("1"), time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.CompareAndSwap(ctx, "k", nil, []byte("2"), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "present key must not match a nil prev")

			ok, err = s.CompareAndSwap(ctx, "k", []byte("1"), []byte("2"), time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.CompareAndSwap(ctx, "k", []byte("1"), []byte("3"), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			got, _ := s.Get(ctx, "k")
			assert.Equal(t, []byte("2"), got)
		})
	}
}

func TestStoreCompareAndDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, "k", []byte("owner-a"), time.Minute))

			ok, err := s.CompareAndDelete(ctx, "k", []byte("owner-b"))
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.CompareAndDelete(ctx, "k", []byte("owner-a"))
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreConcurrentSetNXSingleWinner(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.SetNX(context.Background(), "race", []byte("x"), time.Minute)
					if err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Second))
	assert.True(t, mr.Exists("test:k"))

	mr.FastForward(2 * time.Second)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", []byte("v"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())

	now = now.Add(time.Second)
	ok, err = s.SetNX(ctx, "k", []byte("w"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key is treated as absent")
}

func TestConnectRejectsEmptyAddr(t *testing.T) {
	_, err := Connect(context.Background(), &config.Redis{})
	assert.Error(t, err)
}
