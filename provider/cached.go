package provider

import (
	"context"
	"time"

	"github.com/ncobase/placesearch/data/cache"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Cached serves repeated queries from the shared cache and coalesces
// concurrent identical fetches inside one process.
type Cached struct {
	next  Provider
	cache *cache.Cache[Result]
	group singleflight.Group
	// timeout bounds a shared fetch, which outlives any single caller.
	timeout time.Duration
	log     *logger.Logger
}

// NewCached wraps next. A non-positive timeout leaves shared fetches
// bounded by next alone.
func NewCached(next Provider, c *cache.Cache[Result], timeout time.Duration, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.Discard()
	}
	return &Cached{next: next, cache: c, timeout: timeout, log: log}
}

// Search implements Provider.
func (c *Cached) Search(ctx context.Context, q Query) (*Result, error) {
	key := q.CacheKey()

	if hit, err := c.cache.Get(ctx, key); err != nil {
		c.log.WithFields(ctx, logrus.Fields{"error": err}).Warn("provider cache read failed")
	} else if hit != nil {
		return hit, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Waiters share this fetch, so one caller's cancellation must not end it.
		fetchCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, c.timeout)
			defer cancel()
		}
		res, err := c.next.Search(fetchCtx, q)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(fetchCtx, key, res); err != nil {
			c.log.WithFields(fetchCtx, logrus.Fields{"error": err}).Warn("provider cache write failed")
		}
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	case <-ctx.Done():
		return nil, Classify(ctx.Err())
	}
}
