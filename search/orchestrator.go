package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/placesearch/concurrency/task"
	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/ctxutil"
	"github.com/ncobase/placesearch/data/cache"
	"github.com/ncobase/placesearch/geo"
	"github.com/ncobase/placesearch/job"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/ncobase/placesearch/paging"
	"github.com/ncobase/placesearch/provider"
	"github.com/ncobase/placesearch/ranking"
	"github.com/ncobase/placesearch/realtime"
	"github.com/sirupsen/logrus"
)

// Publisher delivers realtime events. Delivery failures stay inside it.
type Publisher interface {
	Publish(ctx context.Context, ev *realtime.Event)
}

// JobTracker is the part of the job store a run writes to.
type JobTracker interface {
	SetProgress(ctx context.Context, id string, stage string, progress int) (*job.Job, error)
	SetResult(ctx context.Context, id string, status job.Status, result json.RawMessage) (*job.Job, error)
	SetError(ctx context.Context, id string, code, message string) (*job.Job, error)
}

// WeightSource supplies the current default ranking weights.
type WeightSource interface {
	Load() ranking.Weights
}

// Observer receives pipeline measurements.
type Observer interface {
	StageObserved(stage string, d time.Duration)
	RunFinished(kind Kind, code string)
	ProviderFailed(kind provider.Kind)
}

type noopObserver struct{}

func (noopObserver) StageObserved(string, time.Duration) {}
func (noopObserver) RunFinished(Kind, string)            {}
func (noopObserver) ProviderFailed(provider.Kind)        {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *realtime.Event) {}

// Options are the orchestrator's collaborators. Provider is required.
type Options struct {
	Gate        Gate
	Filters     FilterExtractor
	Constraints ConstraintExtractor
	Narrator    Narrator
	Provider    provider.Provider
	Publisher   Publisher
	Jobs        JobTracker
	Narrations  *cache.Cache[NarrationRecord]
	Enricher    *Enricher
	Weights     WeightSource
	Observer    Observer
	Logger      *logger.Logger
}

// RunOptions select how one run is tracked and delivered.
type RunOptions struct {
	RequestID string
	// Tracked runs write their lifecycle to the job store.
	Tracked bool
	// Deferred runs deliver narration as the deferred variant.
	Deferred bool
}

// progress percentages reported after each stage
var stagePercent = map[string]int{
	StageGate:        10,
	StageRoute:       20,
	StageMapping:     25,
	StageFilters:     35,
	StageProvider:    65,
	StageConstraints: 70,
	StagePostFilter:  80,
	StageRanking:     90,
}

// Orchestrator drives the fixed stage sequence of one search.
type Orchestrator struct {
	cfg         *config.Pipeline
	gate        Gate
	filters     FilterExtractor
	constraints ConstraintExtractor
	narrator    Narrator
	provider    provider.Provider
	publisher   Publisher
	jobs        JobTracker
	narrations  *cache.Cache[NarrationRecord]
	enricher    *Enricher
	weights     WeightSource
	observer    Observer
	log         *logger.Logger
	background  *task.Group
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator. Missing optional collaborators
// fall back to heuristic or no-op implementations.
func NewOrchestrator(cfg *config.Pipeline, opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, errors.New("search: provider is required")
	}
	o := &Orchestrator{
		cfg:         cfg,
		gate:        opts.Gate,
		filters:     opts.Filters,
		constraints: opts.Constraints,
		narrator:    opts.Narrator,
		provider:    opts.Provider,
		publisher:   opts.Publisher,
		jobs:        opts.Jobs,
		narrations:  opts.Narrations,
		enricher:    opts.Enricher,
		weights:     opts.Weights,
		observer:    opts.Observer,
		log:         opts.Logger,
		background:  task.NewGroup(context.Background()),
		now:         time.Now,
	}
	if o.gate == nil {
		o.gate = HeuristicGate{}
	}
	if o.filters == nil {
		o.filters = HeuristicExtractor{}
	}
	if o.constraints == nil {
		o.constraints = HeuristicExtractor{}
	}
	if o.narrator == nil {
		o.narrator = TemplateNarrator{}
	}
	if o.publisher == nil {
		o.publisher = noopPublisher{}
	}
	if o.weights == nil {
		o.weights = ranking.NewHolder(ranking.Weights{Rating: 0.5, Reviews: 0.2, Distance: 0.3, OpenBoost: 0.1, CuisineMatch: 0.2})
	}
	if o.observer == nil {
		o.observer = noopObserver{}
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	return o, nil
}

// Run executes one search. It always returns a response; failures are
// classified into an error response carrying a fallback message.
func (o *Orchestrator) Run(ctx context.Context, req *Request, opts RunOptions) (resp *Response) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	pc := &PipelineContext{
		RequestID: opts.RequestID,
		SessionID: req.SessionID,
		StartTime: o.now(),
		Location:  req.Location,
		Tracked:   opts.Tracked && o.jobs != nil,
		Deferred:  opts.Deferred,
		stage:     StageGate,
		timings:   make(map[string]time.Duration),
	}

	speculative := task.NewGroup(ctx)
	defer speculative.Drain()
	defer func() {
		if r := recover(); r != nil {
			resp = o.fail(ctx, pc, &Failure{Code: CodeInternal, Stage: pc.stage, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	resp, f := o.run(ctx, pc, req, speculative)
	if f != nil {
		return o.fail(ctx, pc, f)
	}
	return resp
}

func (o *Orchestrator) run(ctx context.Context, pc *PipelineContext, req *Request, speculative *task.Group) (*Response, *Failure) {
	o.publisher.Publish(ctx, realtime.Status(pc.RequestID, pc.SessionID, realtime.StatusRunning, 0))

	// gate
	start := o.now()
	detected := DetectLanguage(req.Query, o.cfg.DefaultLanguage)
	if req.Language != "" {
		detected = req.Language
	}
	outcome, err := o.gate.Classify(ctx, GateInput{Query: req.Query, Language: detected, HasLocation: req.Location != nil})
	o.observe(pc, StageGate, start)
	if err != nil {
		return nil, classify(ctx, StageGate, err)
	}

	var cont GateContinue
	switch v := outcome.(type) {
	case GateStop:
		pc.Language = firstNonEmpty(v.Language, detected)
		return o.stop(ctx, pc, v.Message), nil
	case GateClarify:
		pc.Language = firstNonEmpty(v.Language, detected)
		return o.clarify(ctx, pc, v.Question), nil
	case GateContinue:
		cont = v
	default:
		return nil, &Failure{Code: CodeGateFailed, Stage: StageGate, Err: fmt.Errorf("unknown gate outcome %T", outcome)}
	}
	o.progress(ctx, pc, StageGate)

	loc := ResolveLocale(req.Language, req.Region, firstNonEmpty(cont.Language, detected), o.cfg.DefaultLanguage, o.cfg.DefaultRegion)
	pc.Language, pc.Region = loc.Language, loc.Region

	// speculative extraction, overlapping routing and the provider call
	in := ExtractInput{Query: req.Query, Language: loc.Language, Filters: req.Filters}
	filtersTask := task.Go(speculative, func(ctx context.Context) (Filters, error) {
		ctx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
		defer cancel()
		return o.filters.ExtractFilters(ctx, in)
	})
	constraintsTask := task.Go(speculative, func(ctx context.Context) (Constraints, error) {
		ctx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
		defer cancel()
		return o.constraints.ExtractConstraints(ctx, in)
	})

	// route
	pc.stage = StageRoute
	start = o.now()
	route := RouteIntent(RouteInput{Query: req.Query, Location: req.Location, Confidence: cont.Confidence})
	o.observe(pc, StageRoute, start)
	var rp RouteProvider
	switch r := route.(type) {
	case RouteClarify:
		return o.clarify(ctx, pc, r.Question), nil
	case RouteProvider:
		rp = r
	}
	o.log.WithFields(ctx, logrus.Fields{"request_id": pc.RequestID, "mode": rp.Mode, "reason": rp.Reason}).Debug("intent routed")
	o.progress(ctx, pc, StageRoute)

	// mapping
	pc.stage = StageMapping
	q := BuildQuery(rp, req, loc)
	o.progress(ctx, pc, StageMapping)

	// pre-provider filters
	pc.stage = StageFilters
	start = o.now()
	extracted, err := filtersTask.Await(ctx)
	if err != nil {
		o.log.WithFields(ctx, logrus.Fields{"request_id": pc.RequestID, "stage": StageFilters, "error": err}).Warn("filter extraction failed, using defaults")
		extracted = Filters{}
	}
	merged := MergeFilters(req.Filters, extracted)
	q.Filters = merged.ProviderFilters()
	o.observe(pc, StageFilters, start)
	o.progress(ctx, pc, StageFilters)

	// provider
	pc.stage = StageProvider
	start = o.now()
	res, err := o.provider.Search(ctx, q)
	o.observe(pc, StageProvider, start)
	if err != nil {
		o.observer.ProviderFailed(provider.Classify(err).Kind)
		return nil, classify(ctx, StageProvider, err)
	}
	o.progress(ctx, pc, StageProvider)

	// post-provider constraints, awaited as late as possible
	pc.stage = StageConstraints
	start = o.now()
	cons, err := constraintsTask.Await(ctx)
	if err != nil {
		o.log.WithFields(ctx, logrus.Fields{"request_id": pc.RequestID, "stage": StageConstraints, "error": err}).Warn("constraint extraction failed, using defaults")
		cons = Constraints{}
	}
	o.observe(pc, StageConstraints, start)

	pc.stage = StagePostFilter
	start = o.now()
	eff := Resolve(merged, cons)
	origin := ranking.Origin(req.Location, res.CityCenter)
	kept := PostFilter(res.Places, eff, origin)
	o.observe(pc, StagePostFilter, start)
	o.progress(ctx, pc, StagePostFilter)

	pc.stage = StageRanking
	start = o.now()
	items := rank(kept, eff, req.Location != nil, origin, o.weights.Load())
	o.observe(pc, StageRanking, start)
	o.progress(ctx, pc, StageRanking)

	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, StageRanking, err)
	}

	pc.stage = StageAssemble
	resp := o.assemble(ctx, pc, req, q.Mode, items)
	o.complete(ctx, pc, resp, job.StatusDoneSuccess)

	o.narrateLater(ctx, pc, NarrationInput{
		Query:    req.Query,
		Language: pc.Language,
		Kind:     KindResults,
		Results:  resp.Results,
		Total:    len(items),
	})
	o.enrichLater(ctx, resp.Results)
	return resp, nil
}

func rank(places []provider.Place, eff Effective, hasUserLocation bool, origin *geo.Point, w ranking.Weights) []ResultItem {
	feats := make([]ranking.Features, len(places))
	for i, p := range places {
		feats[i] = ranking.Features{
			Rating:        p.Rating,
			ReviewCount:   p.ReviewCount,
			Location:      p.Location,
			OpenNow:       p.OpenNow,
			CuisineScores: p.CuisineScores,
		}
	}
	rc := ranking.Context{
		HasUserLocation:  hasUserLocation,
		OpenNowRequested: eff.OpenNow,
		CuisineKey:       eff.CuisineKey,
	}
	rc.HasCuisineScores = ranking.HasCuisineScores(feats, eff.CuisineKey)

	scored := ranking.Rank(feats, ranking.Enforce(w, rc), rc, origin)
	items := make([]ResultItem, len(scored))
	for i, s := range scored {
		items[i] = ResultItem{Place: places[s.Index], Score: s.Score, DistanceKm: s.DistanceKm}
	}
	return items
}

func (o *Orchestrator) assemble(ctx context.Context, pc *PipelineContext, req *Request, mode provider.Mode, items []ResultItem) *Response {
	page := paging.Paginate(items, paging.Params{Page: req.Page, Size: o.cfg.PageSize})
	if o.enricher != nil {
		o.enricher.Attach(ctx, page.Items)
	}
	return &Response{
		RequestID: pc.RequestID,
		Kind:      KindResults,
		Results:   page.Items,
		Pagination: &Pagination{
			Page:     page.Page,
			PageSize: page.Size,
			Total:    page.Total,
			HasMore:  page.HasMore,
		},
		Language: pc.Language,
		Region:   pc.Region,
		Mode:     mode,
		Timings:  pc.Timings(),
	}
}

func (o *Orchestrator) stop(ctx context.Context, pc *PipelineContext, message string) *Response {
	resp := &Response{
		RequestID: pc.RequestID,
		Kind:      KindStop,
		Results:   []ResultItem{},
		Message:   message,
		Language:  pc.Language,
		Timings:   pc.Timings(),
	}
	o.complete(ctx, pc, resp, job.StatusDoneStopped)

	wctx, cancel := ctxutil.WithAsyncContext(ctx, 0)
	defer cancel()
	rec := &NarrationRecord{Text: message, Language: pc.Language, Deferred: pc.Deferred}
	o.storeNarration(wctx, pc.RequestID, rec)
	o.publisher.Publish(wctx, realtime.Narration(pc.RequestID, pc.SessionID, message, pc.Language, pc.Deferred))
	return resp
}

func (o *Orchestrator) clarify(ctx context.Context, pc *PipelineContext, question string) *Response {
	resp := &Response{
		RequestID: pc.RequestID,
		Kind:      KindClarify,
		Results:   []ResultItem{},
		Question:  question,
		Language:  pc.Language,
		Timings:   pc.Timings(),
	}
	o.complete(ctx, pc, resp, job.StatusDoneClarify)
	return resp
}

// complete records a success-shaped terminal state and announces it.
func (o *Orchestrator) complete(ctx context.Context, pc *PipelineContext, resp *Response, status job.Status) {
	wctx, cancel := ctxutil.WithAsyncContext(ctx, 0)
	defer cancel()

	if pc.Tracked {
		raw, err := json.Marshal(resp)
		if err == nil {
			_, err = o.jobs.SetResult(wctx, pc.RequestID, status, raw)
		}
		if err != nil {
			o.log.WithFields(wctx, logrus.Fields{"request_id": pc.RequestID, "status": status, "error": err}).Warn("failed to persist job result")
		}
	}

	switch resp.Kind {
	case KindResults:
		o.publisher.Publish(wctx, realtime.Status(pc.RequestID, pc.SessionID, realtime.StatusCompleted, 100))
		if raw, err := json.Marshal(resp.Results); err == nil {
			o.publisher.Publish(wctx, realtime.Results(pc.RequestID, pc.SessionID, raw))
		}
		o.publisher.Publish(wctx, realtime.Ready(pc.RequestID, pc.SessionID, resp.Pagination.Total))
	case KindClarify:
		o.publisher.Publish(wctx, realtime.Clarify(pc.RequestID, pc.SessionID, resp.Question))
	case KindStop:
		o.publisher.Publish(wctx, realtime.Status(pc.RequestID, pc.SessionID, realtime.StatusCompleted, 100))
	}

	o.observer.RunFinished(resp.Kind, "")
	o.log.WithFields(wctx, logrus.Fields{
		"request_id": pc.RequestID,
		"kind":       resp.Kind,
		"elapsed_ms": o.now().Sub(pc.StartTime).Milliseconds(),
	}).Info("search completed")
}

func (o *Orchestrator) fail(ctx context.Context, pc *PipelineContext, f *Failure) *Response {
	wctx, cancel := ctxutil.WithAsyncContext(ctx, 0)
	defer cancel()

	o.log.WithStage(wctx, f.Stage).WithFields(logrus.Fields{
		"request_id": pc.RequestID,
		"code":       f.Code,
		"error":      f.Err,
	}).Error("search failed")

	if pc.Tracked {
		if _, err := o.jobs.SetError(wctx, pc.RequestID, string(f.Code), f.Message()); err != nil {
			o.log.WithFields(wctx, logrus.Fields{"request_id": pc.RequestID, "error": err}).Warn("failed to persist job error")
		}
	}
	o.publisher.Publish(wctx, realtime.Failure(pc.RequestID, pc.SessionID, string(f.Code), f.Message()))
	o.observer.RunFinished(KindError, string(f.Code))

	return &Response{
		RequestID: pc.RequestID,
		Kind:      KindError,
		Results:   []ResultItem{},
		Message:   f.Message(),
		Language:  pc.Language,
		Region:    pc.Region,
		Error:     f.Info(),
		Timings:   pc.Timings(),
	}
}

func (o *Orchestrator) observe(pc *PipelineContext, stage string, start time.Time) {
	d := o.now().Sub(start)
	pc.record(stage, d)
	o.observer.StageObserved(stage, d)
}

func (o *Orchestrator) progress(ctx context.Context, pc *PipelineContext, stage string) {
	pct := stagePercent[stage]
	o.publisher.Publish(ctx, realtime.Progress(pc.RequestID, pc.SessionID, stage, pct, ""))
	if !pc.Tracked {
		return
	}
	if _, err := o.jobs.SetProgress(ctx, pc.RequestID, stage, pct); err != nil {
		o.log.WithFields(ctx, logrus.Fields{"request_id": pc.RequestID, "stage": stage, "error": err}).Warn("failed to persist job progress")
	}
}

// detachedContext returns a context carrying the request's values, bounded by
// timeout and cancelled when the orchestrator shuts down.
func detachedContext(reqCtx, groupCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := ctxutil.WithAsyncContext(reqCtx, timeout)
	stop := context.AfterFunc(groupCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// narrateLater generates narration off the response path. Its only
// delivery channel is the publisher and the replay cache.
func (o *Orchestrator) narrateLater(reqCtx context.Context, pc *PipelineContext, in NarrationInput) {
	requestID, sessionID, deferred := pc.RequestID, pc.SessionID, pc.Deferred
	task.Go(o.background, func(gctx context.Context) (struct{}, error) {
		ctx, cancel := detachedContext(reqCtx, gctx, o.cfg.NarrationTimeout)
		defer cancel()

		o.publisher.Publish(ctx, realtime.AssistantProgress(requestID, sessionID, "Summarizing the results"))

		n, err := o.narrator.Narrate(ctx, in)
		if err != nil || n.Text == "" {
			if err != nil {
				o.log.WithFields(ctx, logrus.Fields{"request_id": requestID, "error": err}).Warn("narration failed, using template")
			}
			n, _ = TemplateNarrator{}.Narrate(ctx, in)
		}

		rec := &NarrationRecord{Text: n.Text, Language: in.Language, Deferred: deferred, Suggestions: n.Suggestions}
		o.storeNarration(ctx, requestID, rec)
		o.publisher.Publish(ctx, realtime.Narration(requestID, sessionID, rec.Text, rec.Language, deferred))
		if len(rec.Suggestions) > 0 {
			o.publisher.Publish(ctx, realtime.Suggestions(requestID, sessionID, rec.Suggestions))
		}
		return struct{}{}, nil
	})
}

func (o *Orchestrator) storeNarration(ctx context.Context, requestID string, rec *NarrationRecord) {
	if o.narrations == nil || requestID == "" {
		return
	}
	if err := o.narrations.Set(ctx, requestID, rec); err != nil {
		o.log.WithFields(ctx, logrus.Fields{"request_id": requestID, "error": err}).Warn("failed to cache narration")
	}
}

func (o *Orchestrator) enrichLater(reqCtx context.Context, items []ResultItem) {
	if o.enricher == nil || len(items) == 0 {
		return
	}
	pending := append([]ResultItem(nil), items...)
	task.Go(o.background, func(gctx context.Context) (int, error) {
		ctx, cancel := detachedContext(reqCtx, gctx, o.cfg.NarrationTimeout)
		defer cancel()
		return o.enricher.Enrich(ctx, pending), nil
	})
}

// WaitBackground blocks until every narration and enrichment task ends.
func (o *Orchestrator) WaitBackground() {
	o.background.Wait()
}

// Shutdown waits for background tasks until ctx ends, then cancels the rest.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.background.Drain()
		return nil
	case <-ctx.Done():
		o.background.Drain()
		return ctx.Err()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
