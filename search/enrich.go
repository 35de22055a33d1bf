package search

import (
	"context"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/gosimple/slug"
	"github.com/ncobase/placesearch/concurrency"
	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/data/cache"
	"github.com/ncobase/placesearch/data/lock"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/sirupsen/logrus"
)

// Enricher attaches a maps link to result items. Each link is resolved
// by at most one instance at a time; the others skip it.
type Enricher struct {
	locker  *lock.Locker
	links   *cache.Cache[string]
	limiter *concurrency.Limiter
	baseURL string
	lockTTL time.Duration
	log     *logger.Logger
}

// NewEnricher creates an Enricher. limiter may be nil.
func NewEnricher(cfg *config.Enrichment, locker *lock.Locker, links *cache.Cache[string], limiter *concurrency.Limiter, log *logger.Logger) *Enricher {
	if log == nil {
		log = logger.Discard()
	}
	return &Enricher{
		locker:  locker,
		links:   links,
		limiter: limiter,
		baseURL: cfg.BaseURL,
		lockTTL: cfg.LockTTL,
		log:     log,
	}
}

type linkParams struct {
	API     string `url:"api"`
	Query   string `url:"query"`
	PlaceID string `url:"query_place_id"`
}

// Link builds the maps link of one place.
func (e *Enricher) Link(item ResultItem) (string, error) {
	v, err := query.Values(linkParams{
		API:     "1",
		Query:   slug.Make(strings.TrimSpace(item.Name + " " + item.Address)),
		PlaceID: item.ID,
	})
	if err != nil {
		return "", err
	}
	return e.baseURL + "?" + v.Encode(), nil
}

// Attach fills Link from the cache for every item that has one.
func (e *Enricher) Attach(ctx context.Context, items []ResultItem) {
	for i := range items {
		if items[i].ID == "" || items[i].Link != "" {
			continue
		}
		link, err := e.links.Get(ctx, items[i].ID)
		if err != nil {
			e.log.WithFields(ctx, logrus.Fields{"place": items[i].ID, "error": err}).Debug("link cache read failed")
			continue
		}
		if link != nil {
			items[i].Link = *link
		}
	}
}

// Enrich resolves and caches links for items that lack one and returns
// how many it wrote. Items owned by another instance are skipped without
// retry.
func (e *Enricher) Enrich(ctx context.Context, items []ResultItem) int {
	n := 0
	for _, it := range items {
		if it.ID == "" || it.Link != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if e.enrichOne(ctx, it) {
			n++
		}
	}
	return n
}

func (e *Enricher) enrichOne(ctx context.Context, it ResultItem) bool {
	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return false
		}
		defer e.limiter.Release()
	}

	lease, ok := e.locker.TryAcquire(ctx, "enrich:"+it.ID, e.lockTTL)
	if !ok {
		return false
	}

	link, err := e.Link(it)
	if err == nil {
		err = e.links.Set(ctx, it.ID, &link)
	}
	if err != nil {
		e.log.WithFields(ctx, logrus.Fields{"place": it.ID, "error": err}).Warn("enrichment failed")
		e.locker.Release(ctx, lease)
		return false
	}
	// The lease is kept until its TTL so peers skip the item meanwhile.
	return true
}
