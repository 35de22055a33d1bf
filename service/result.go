package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ncobase/placesearch/job"
	"github.com/ncobase/placesearch/realtime"
	"github.com/ncobase/placesearch/search"
)

// PendingView is returned while a job is in flight.
type PendingView struct {
	RequestID string     `json:"requestId"`
	Status    job.Status `json:"status"`
	Progress  int        `json:"progress"`
	Stage     string     `json:"stage,omitempty"`
}

// FailedView is the stable terminal error envelope.
type FailedView struct {
	RequestID string     `json:"requestId"`
	Status    job.Status `json:"status"`
	Terminal  bool       `json:"terminal"`
	Error     *job.Error `json:"error"`
}

// ResultView is what the result endpoint renders.
type ResultView struct {
	StatusCode int
	Body       any
}

// Result returns the polling view of requestID for sessionID: 202 with
// progress while in flight, 200 with the payload or a terminal error
// envelope once done.
func (s *Service) Result(ctx context.Context, requestID, sessionID string) (*ResultView, error) {
	j, err := s.jobs.Get(ctx, requestID)
	if errors.Is(err, job.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if j.SessionID != "" && j.SessionID != sessionID {
		return nil, ErrForbidden
	}

	switch {
	case !j.Status.IsTerminal():
		return &ResultView{
			StatusCode: http.StatusAccepted,
			Body:       PendingView{RequestID: j.RequestID, Status: j.Status, Progress: j.Progress, Stage: j.Stage},
		}, nil
	case j.Status == job.StatusDoneFailed:
		return &ResultView{StatusCode: http.StatusOK, Body: failedView(j)}, nil
	default:
		return &ResultView{StatusCode: http.StatusOK, Body: j.Result}, nil
	}
}

func failedView(j *job.Job) FailedView {
	e := j.Error
	if e == nil {
		e = &job.Error{Code: string(search.CodeInternal), Message: search.FallbackMessage(search.CodeInternal)}
	}
	return FailedView{RequestID: j.RequestID, Status: j.Status, Terminal: true, Error: e}
}

// responseOf rebuilds the pipeline response of a terminal job.
func responseOf(j *job.Job) (*search.Response, error) {
	if j.Status == job.StatusDoneFailed {
		f := failedView(j)
		return &search.Response{
			RequestID: j.RequestID,
			Kind:      search.KindError,
			Results:   []search.ResultItem{},
			Message:   f.Error.Message,
			Error:     &search.ErrorInfo{Code: f.Error.Code, Message: f.Error.Message},
		}, nil
	}
	var resp search.Response
	if err := json.Unmarshal(j.Result, &resp); err != nil {
		return nil, fmt.Errorf("decode job result %s: %w", j.RequestID, err)
	}
	return &resp, nil
}

// Snapshot implements realtime.ReplaySource. The events are built with the
// same constructors the pipeline publishes with.
func (s *Service) Snapshot(ctx context.Context, requestID string) (*realtime.Snapshot, error) {
	j, err := s.jobs.Get(ctx, requestID)
	if errors.Is(err, job.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &realtime.Snapshot{SessionID: j.SessionID}
	add := func(ev *realtime.Event) { snap.Events = append(snap.Events, ev) }
	id, sid := j.RequestID, j.SessionID

	if !j.Status.IsTerminal() {
		add(realtime.Status(id, sid, realtime.StatusRunning, j.Progress))
		return snap, nil
	}
	if j.Status == job.StatusDoneFailed {
		f := failedView(j)
		add(realtime.Failure(id, sid, f.Error.Code, f.Error.Message))
		return snap, nil
	}

	resp, err := responseOf(j)
	if err != nil {
		return nil, err
	}
	switch resp.Kind {
	case search.KindClarify:
		add(realtime.Clarify(id, sid, resp.Question))
		return snap, nil
	case search.KindResults:
		add(realtime.Status(id, sid, realtime.StatusCompleted, 100))
		if raw, err := json.Marshal(resp.Results); err == nil {
			add(realtime.Results(id, sid, raw))
		}
		total := len(resp.Results)
		if resp.Pagination != nil {
			total = resp.Pagination.Total
		}
		add(realtime.Ready(id, sid, total))
	default:
		add(realtime.Status(id, sid, realtime.StatusCompleted, 100))
	}

	rec := s.narration(ctx, id)
	if rec == nil && resp.Kind == search.KindStop && resp.Message != "" {
		rec = &search.NarrationRecord{Text: resp.Message, Language: resp.Language}
	}
	if rec != nil {
		add(realtime.Narration(id, sid, rec.Text, rec.Language, rec.Deferred))
		if len(rec.Suggestions) > 0 {
			add(realtime.Suggestions(id, sid, rec.Suggestions))
		}
	}
	return snap, nil
}

func (s *Service) narration(ctx context.Context, requestID string) *search.NarrationRecord {
	if s.narrations == nil {
		return nil
	}
	rec, err := s.narrations.Get(ctx, requestID)
	if err != nil {
		s.log.Warnf(ctx, "narration cache read failed for %s: %v", requestID, err)
		return nil
	}
	return rec
}
