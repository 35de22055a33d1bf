package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/placesearch/data/kv"
)

// Collector observes cache lookups.
type Collector interface {
	CacheAccess(name string, hit bool, err error)
}

// NoOpCollector discards observations.
type NoOpCollector struct{}

func (NoOpCollector) CacheAccess(string, bool, error) {}

// Cache is a typed JSON cache over a shared store.
type Cache[T any] struct {
	store     kv.Store
	name      string
	ttl       time.Duration
	collector Collector
}

// NewCache creates a cache whose keys live under name.
func NewCache[T any](store kv.Store, name string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		store:     store,
		name:      name,
		ttl:       ttl,
		collector: NoOpCollector{},
	}
}

// NewCacheWithMetrics creates a cache reporting to collector.
func NewCacheWithMetrics[T any](store kv.Store, name string, ttl time.Duration, collector Collector) *Cache[T] {
	c := NewCache[T](store, name, ttl)
	if collector != nil {
		c.collector = collector
	}
	return c
}

// Key returns the store key for field.
func (c *Cache[T]) Key(field string) string {
	if c.name != "" {
		return fmt.Sprintf("cache:%s:%s", c.name, field)
	}
	return "cache:" + field
}

// Get returns the cached item, or nil on a miss.
func (c *Cache[T]) Get(ctx context.Context, field string) (*T, error) {
	if c.store == nil {
		return nil, errors.New("cache store is nil, cannot get cache")
	}

	raw, err := c.store.Get(ctx, c.Key(field))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			c.collector.CacheAccess(c.name, false, nil)
			return nil, nil
		}
		c.collector.CacheAccess(c.name, false, err)
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var row T
	if err = json.Unmarshal(raw, &row); err != nil {
		c.collector.CacheAccess(c.name, false, err)
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	c.collector.CacheAccess(c.name, true, nil)
	return &row, nil
}

// Set stores an item. An explicit expire overrides the cache default.
func (c *Cache[T]) Set(ctx context.Context, field string, data *T, expire ...time.Duration) error {
	if c.store == nil {
		return errors.New("cache store is nil, cannot set cache")
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	ttl := c.ttl
	if len(expire) > 0 {
		ttl = expire[0]
	}
	if err = c.store.Set(ctx, c.Key(field), b, ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Delete removes an item.
func (c *Cache[T]) Delete(ctx context.Context, field string) error {
	if c.store == nil {
		return errors.New("cache store is nil, cannot delete cache")
	}
	if err := c.store.Del(ctx, c.Key(field)); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}
