// Package server assembles the service components and owns their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/placesearch/concurrency"
	"github.com/ncobase/placesearch/concurrency/worker"
	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/data/cache"
	"github.com/ncobase/placesearch/data/kv"
	"github.com/ncobase/placesearch/data/lock"
	"github.com/ncobase/placesearch/handler"
	"github.com/ncobase/placesearch/job"
	"github.com/ncobase/placesearch/llm"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/ncobase/placesearch/metrics"
	"github.com/ncobase/placesearch/provider"
	"github.com/ncobase/placesearch/ranking"
	"github.com/ncobase/placesearch/realtime"
	"github.com/ncobase/placesearch/search"
	"github.com/ncobase/placesearch/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// Server holds every long-lived component.
type Server struct {
	cfg *config.Config
	log *logger.Logger

	redis        *redis.Client
	store        kv.Store
	manager      *realtime.Manager
	relay        *realtime.Relay
	pool         *worker.Pool
	orchestrator *search.Orchestrator
	service      *service.Service
	weights      *ranking.Holder
	metrics      *metrics.Collector
	handler      *handler.Handler

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// New constructs the components. An empty redis address selects the
// in-process store, which only suits a single instance.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.StdLogger()
	}
	s := &Server{cfg: cfg, log: log}

	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s.metrics = collector

	if cfg.Data.Redis.Addr != "" {
		client, err := kv.Connect(ctx, cfg.Data.Redis)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.store = kv.NewRedisStore(client, cfg.Data.Redis.KeyPrefix)
	} else {
		log.Warn(ctx, "no redis address configured, using the in-process store")
		s.store = kv.NewMemoryStore()
	}

	jobs := job.NewStore(s.store, cfg.Jobs.TTL)
	locker := lock.New(s.store, log)

	s.manager = realtime.NewManager(cfg.Realtime, log)
	s.manager.SetObserver(collector)
	if s.redis != nil && cfg.Realtime.RelayChannel != "" {
		s.relay = realtime.NewRelay(s.redis, cfg.Realtime.RelayChannel, s.manager, log)
		s.manager.SetForwarder(s.relay)
	}

	upstream, err := provider.NewHTTPClient(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	results := cache.NewCacheWithMetrics[provider.Result](s.store, "provider", cfg.Provider.CacheTTL, collector)
	narrations := cache.NewCacheWithMetrics[search.NarrationRecord](s.store, "narration", cfg.Realtime.ReplayTTL, collector)

	s.weights = ranking.NewHolder(weightsOf(cfg.Ranking))

	opts := search.Options{
		Provider:   provider.NewCached(upstream, results, cfg.Provider.Timeout, log),
		Publisher:  s.manager,
		Jobs:       jobs,
		Narrations: narrations,
		Weights:    s.weights,
		Observer:   collector,
		Logger:     log,
	}
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		extractor := llm.NewExtractor(client)
		opts.Gate = llm.NewGate(client)
		opts.Filters = extractor
		opts.Constraints = extractor
		opts.Narrator = llm.NewNarrator(client)
		log.WithFields(ctx, logrus.Fields{"model": client.ModelName()}).Info("language model collaborators enabled")
	}
	if cfg.Enrichment.Enabled {
		limiter, err := concurrency.NewLimiter(int32(max(cfg.Pipeline.Workers, 1)))
		if err != nil {
			return nil, err
		}
		links := cache.NewCacheWithMetrics[string](s.store, "links", cfg.Enrichment.LinkTTL, collector)
		opts.Enricher = search.NewEnricher(cfg.Enrichment, locker, links, limiter, log)
	}

	s.orchestrator, err = search.NewOrchestrator(cfg.Pipeline, opts)
	if err != nil {
		return nil, err
	}

	s.pool, err = worker.NewPool(&worker.Config{
		MaxWorkers:  cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
		TaskTimeout: cfg.Pipeline.Deadline + 5*time.Second,
	}, func(recovered any) {
		log.WithFields(context.Background(), logrus.Fields{"panic": recovered}).Error("background search panicked")
	})
	if err != nil {
		return nil, err
	}
	collector.WatchPool(s.pool)
	collector.WatchSubscriptions(s.manager.Stats)

	s.service, err = service.New(cfg.Jobs, cfg.Pipeline, service.Options{
		Jobs:        jobs,
		Runner:      s.orchestrator,
		Subscribers: s.manager,
		Pool:        s.pool,
		Narrations:  narrations,
		Observer:    collector,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	s.manager.SetReplaySource(s.service)

	s.handler = handler.New(handler.Options{
		Searcher: s.service,
		Realtime: realtime.NewHandler(s.manager, cfg.Realtime.SendBuffer, log),
		Stats:    s.manager.Stats,
		Store:    s.store,
		Metrics:  collector.Handler(),
		Logger:   log,
	})
	return s, nil
}

func weightsOf(r *config.Ranking) ranking.Weights {
	return ranking.Weights{
		Rating:       r.Rating,
		Reviews:      r.Reviews,
		Distance:     r.Distance,
		OpenBoost:    r.OpenBoost,
		CuisineMatch: r.CuisineMatch,
	}
}

// SetupRouter returns the HTTP router.
func (s *Server) SetupRouter() *gin.Engine {
	if s.cfg.RunMode != "" {
		gin.SetMode(s.cfg.RunMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	s.handler.Register(r)
	return r
}

// Start runs the background loops: the worker pool, the intent sweeper,
// the cross-instance relay and the ranking weight watcher.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.pool.Start()

	s.wg.Go(func() { s.manager.Run(ctx) })
	if s.relay != nil {
		s.wg.Go(func() {
			if err := s.relay.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				s.log.WithFields(ctx, logrus.Fields{"error": err}).Error("relay stopped")
			}
		})
	}

	s.cfg.Watch(func(next *config.Config) {
		w := weightsOf(next.Ranking)
		s.weights.Store(w)
		s.log.WithFields(ctx, logrus.Fields{"weights": s.weights.Load()}).Info("ranking weights reloaded")
	})
}

// Cleanup stops the components in reverse start order.
func (s *Server) Cleanup(ctx context.Context) {
	s.pool.Stop(ctx)
	if err := s.orchestrator.Shutdown(ctx); err != nil {
		s.log.WithFields(ctx, logrus.Fields{"error": err}).Warn("background pipeline work did not finish")
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if err := s.store.Close(); err != nil {
		s.log.WithFields(ctx, logrus.Fields{"error": err}).Warn("failed to close store")
	}
}
