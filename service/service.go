// Package service accepts search requests, deduplicates them against the
// job store and runs the pipeline in the background or inline.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ncobase/placesearch/concurrency/worker"
	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/ctxutil"
	"github.com/ncobase/placesearch/data/cache"
	"github.com/ncobase/placesearch/job"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/ncobase/placesearch/search"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBusy is returned when the background queue cannot take more work.
	ErrBusy = errors.New("service: too many pending searches")
	// ErrForbidden is returned when a request belongs to another session.
	ErrForbidden = errors.New("service: request belongs to another session")
	// ErrNotFound is returned for unknown or expired requests.
	ErrNotFound = errors.New("service: request not found")
)

// Mode is how the caller receives the result.
type Mode string

const (
	ModeAsync Mode = "async"
	ModeSync  Mode = "sync"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req *search.Request, opts search.RunOptions) *search.Response
}

// Subscribers is the realtime view the dedup path needs.
type Subscribers interface {
	HasActiveSubscribers(requestID, sessionID string) bool
	RecordIntent(requestID, sessionID string)
}

// Submitter queues background work.
type Submitter interface {
	Submit(task worker.Task) error
}

// Observer receives dedup decisions.
type Observer interface {
	DedupDecided(action job.Action, reason string)
}

type noopObserver struct{}

func (noopObserver) DedupDecided(job.Action, string) {}

// Options are the service collaborators. Jobs, Runner and Pool are required.
type Options struct {
	Jobs        *job.Store
	Runner      Runner
	Subscribers Subscribers
	Pool        Submitter
	Narrations  *cache.Cache[search.NarrationRecord]
	Observer    Observer
	Logger      *logger.Logger
}

// Service is the accept path of the search API.
type Service struct {
	cfg        *config.Jobs
	pipeline   *config.Pipeline
	jobs       *job.Store
	runner     Runner
	subs       Subscribers
	pool       Submitter
	narrations *cache.Cache[search.NarrationRecord]
	observer   Observer
	log        *logger.Logger
	newID      func() string
}

// New creates a Service.
func New(cfg *config.Jobs, pipeline *config.Pipeline, opts Options) (*Service, error) {
	if opts.Jobs == nil || opts.Runner == nil || opts.Pool == nil {
		return nil, errors.New("service: jobs, runner and pool are required")
	}
	s := &Service{
		cfg:        cfg,
		pipeline:   pipeline,
		jobs:       opts.Jobs,
		runner:     opts.Runner,
		subs:       opts.Subscribers,
		pool:       opts.Pool,
		narrations: opts.Narrations,
		observer:   opts.Observer,
		log:        opts.Logger,
		newID:      uuid.NewString,
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s, nil
}

// Accepted is the async accept response.
type Accepted struct {
	RequestID string `json:"requestId"`
	ResultURL string `json:"resultUrl"`
	Reused    bool   `json:"reused,omitempty"`
}

// ResultURL returns the polling path of requestID.
func ResultURL(requestID string) string {
	return "/v1/search/" + requestID + "/result"
}

// admission is the outcome of deduplicating one request.
type admission struct {
	requestID string
	reused    bool
	tracked   bool
}

// Submit accepts req for background execution. Duplicates of an existing
// job are redirected to it without starting a new run.
func (s *Service) Submit(ctx context.Context, req *search.Request) (*Accepted, error) {
	adm, err := s.admit(ctx, req, ModeAsync)
	if err != nil {
		return nil, err
	}
	acc := &Accepted{RequestID: adm.requestID, ResultURL: ResultURL(adm.requestID), Reused: adm.reused}
	if s.subs != nil {
		s.subs.RecordIntent(adm.requestID, req.SessionID)
	}
	if adm.reused {
		return acc, nil
	}

	traceID := ctxutil.GetTraceID(ctx)
	run := *req
	err = s.pool.Submit(func(taskCtx context.Context) error {
		taskCtx = ctxutil.SetTraceID(taskCtx, traceID)
		taskCtx = ctxutil.SetSessionID(taskCtx, run.SessionID)
		s.runner.Run(taskCtx, &run, search.RunOptions{RequestID: adm.requestID, Tracked: adm.tracked, Deferred: true})
		return nil
	})
	if err != nil {
		s.log.WithFields(ctx, logrus.Fields{"request_id": adm.requestID, "error": err}).Warn("background queue rejected search")
		if adm.tracked {
			wctx, cancel := ctxutil.WithAsyncContext(ctx, 0)
			defer cancel()
			if _, serr := s.jobs.SetError(wctx, adm.requestID, string(search.CodeInternal), search.FallbackMessage(search.CodeInternal)); serr != nil {
				s.log.WithFields(wctx, logrus.Fields{"request_id": adm.requestID, "error": serr}).Warn("failed to persist job error")
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return acc, nil
}

// Search runs req inline and returns its response. A duplicate of an
// existing job waits for that job instead of running again.
func (s *Service) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	adm, err := s.admit(ctx, req, ModeSync)
	if err != nil {
		return nil, err
	}
	if adm.reused {
		return s.await(ctx, adm.requestID)
	}
	return s.runner.Run(ctx, req, search.RunOptions{RequestID: adm.requestID, Tracked: adm.tracked}), nil
}

// admit computes the idempotency key and applies the dedup matrix. Store
// failures degrade to an untracked run.
func (s *Service) admit(ctx context.Context, req *search.Request, mode Mode) (*admission, error) {
	newID := s.newID()
	key, err := job.IdempotencyKey(job.KeyInput{
		SessionID: req.SessionID,
		Query:     req.Query,
		Mode:      string(mode),
		Location:  req.Location,
		Filters:   req.Filters,
		Page:      req.Page,
	})
	if err != nil {
		return nil, err
	}

	prevID, candidate, err := s.jobs.Lookup(ctx, key)
	if err != nil {
		s.log.WithFields(ctx, logrus.Fields{"error": err}).Warn("job lookup failed, running untracked")
		return &admission{requestID: newID}, nil
	}
	if candidate != nil && s.cfg.FreshWindow > 0 && s.jobs.Now().Sub(candidate.CreatedAt) > s.cfg.FreshWindow {
		candidate = nil
	}

	hasSubscriber := false
	if candidate != nil && s.subs != nil {
		hasSubscriber = s.subs.HasActiveSubscribers(candidate.RequestID, candidate.SessionID)
	}
	decision := job.Decide(candidate, hasSubscriber, s.jobs.Now(), s.cfg.StaleAfter)
	s.observer.DedupDecided(decision.Action, decision.Reason)
	s.log.WithFields(ctx, logrus.Fields{
		"idempotency_key": key,
		"decision":        decision.Action,
		"reason":          decision.Reason,
	}).Debug("dedup decision")

	if decision.Action == job.ActionReuse {
		return &admission{requestID: candidate.RequestID, reused: true}, nil
	}
	if decision.Stale {
		// the candidate may have completed since it was read; MarkStale
		// re-reads it and only fails it while still in flight
		failed, err := s.jobs.MarkStale(ctx, candidate.RequestID, string(search.CodeStaleJob), search.FallbackMessage(search.CodeStaleJob))
		if err != nil {
			s.log.WithFields(ctx, logrus.Fields{"request_id": candidate.RequestID, "error": err}).Warn("failed to mark stale job")
		} else if failed {
			s.log.WithFields(ctx, logrus.Fields{"request_id": candidate.RequestID}).Info("stale job failed")
		}
	}

	if _, err := s.jobs.Create(ctx, job.CreateParams{
		RequestID:      newID,
		SessionID:      req.SessionID,
		OwnerUserID:    req.UserID,
		IdempotencyKey: key,
		Query:          req.Query,
	}); err != nil {
		s.log.WithFields(ctx, logrus.Fields{"request_id": newID, "error": err}).Warn("failed to create job, running untracked")
		return &admission{requestID: newID}, nil
	}

	winner, won, err := s.jobs.Claim(ctx, key, prevID, newID)
	switch {
	case err != nil:
		s.log.WithFields(ctx, logrus.Fields{"request_id": newID, "error": err}).Warn("failed to index job")
	case !won && winner != "":
		s.observer.DedupDecided(job.ActionReuse, "claim_lost")
		return &admission{requestID: winner, reused: true}, nil
	}
	return &admission{requestID: newID, tracked: true}, nil
}

// await polls requestID until it is terminal or the pipeline deadline ends.
func (s *Service) await(ctx context.Context, requestID string) (*search.Response, error) {
	deadline := 30 * time.Second
	if s.pipeline != nil && s.pipeline.Deadline > 0 {
		deadline = s.pipeline.Deadline
	}
	poll := s.cfg.AwaitPoll
	if poll <= 0 {
		poll = 150 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		j, err := s.jobs.Get(ctx, requestID)
		switch {
		case errors.Is(err, job.ErrNotFound):
			return nil, ErrNotFound
		case err != nil:
			return nil, err
		case j.Status.IsTerminal():
			return responseOf(j)
		}

		select {
		case <-ctx.Done():
			return timeoutResponse(requestID), nil
		case <-ticker.C:
		}
	}
}

func timeoutResponse(requestID string) *search.Response {
	return &search.Response{
		RequestID: requestID,
		Kind:      search.KindError,
		Results:   []search.ResultItem{},
		Message:   search.FallbackMessage(search.CodeTimeout),
		Error:     &search.ErrorInfo{Code: string(search.CodeTimeout), Message: search.FallbackMessage(search.CodeTimeout)},
	}
}
