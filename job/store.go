package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/placesearch/data/kv"
)

const casAttempts = 8

var errSkip = errors.New("skip update")

// Store persists jobs and the idempotency index in the shared store. Every
// mutation is a compare-and-swap on the job record.
type Store struct {
	kv  kv.Store
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a Store whose records expire after ttl.
func NewStore(store kv.Store, ttl time.Duration) *Store {
	return &Store{kv: store, ttl: ttl, now: time.Now}
}

// WithClock overrides the clock.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

func jobKey(id string) string {
	return "job:" + id
}

func indexKey(k string) string {
	return "idem:" + k
}

// Create inserts a PENDING job.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Job, error) {
	if p.RequestID == "" {
		return nil, errors.New("request id is required")
	}
	now := s.now()
	j := &Job{
		RequestID:      p.RequestID,
		SessionID:      p.SessionID,
		OwnerUserID:    p.OwnerUserID,
		IdempotencyKey: p.IdempotencyKey,
		Query:          p.Query,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	ok, err := s.kv.SetNX(ctx, jobKey(j.RequestID), raw, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("create job %s: %w", j.RequestID, err)
	}
	if !ok {
		return nil, fmt.Errorf("create job %s: %w", j.RequestID, ErrConflict)
	}
	return j, nil
}

// Get loads a job.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	j, _, err := s.load(ctx, id)
	return j, err
}

func (s *Store) load(ctx context.Context, id string) (*Job, []byte, error) {
	raw, err := s.kv.Get(ctx, jobKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if !j.ExpiresAt.IsZero() && !s.now().Before(j.ExpiresAt) {
		return nil, nil, ErrNotFound
	}
	return &j, raw, nil
}

// update applies mutate under optimistic concurrency. mutate returning
// errSkip leaves the record untouched.
func (s *Store) update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	for i := 0; i < casAttempts; i++ {
		j, raw, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(j); err != nil {
			return j, err
		}

		now := s.now()
		j.UpdatedAt = now
		next, err := json.Marshal(j)
		if err != nil {
			return nil, fmt.Errorf("marshal job: %w", err)
		}
		ttl := j.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return nil, ErrNotFound
		}

		ok, err := s.kv.CompareAndSwap(ctx, jobKey(id), raw, next, ttl)
		if err != nil {
			return nil, fmt.Errorf("update job %s: %w", id, err)
		}
		if ok {
			return j, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("update job %s: %w", id, ErrConflict)
}

// SetStatus moves a job to an in-flight or failure-free terminal status
// without a payload. Use SetResult or SetError for payload-bearing states.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) (*Job, error) {
	if status.CarriesResult() || status == StatusDoneFailed {
		return nil, fmt.Errorf("%w: %s requires a payload", ErrResultShape, status)
	}
	return s.update(ctx, id, func(j *Job) error {
		if !CanTransition(j.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
		}
		j.Status = status
		return nil
	})
}

// SetProgress records stage progress. Progress never decreases and a
// PENDING job becomes RUNNING.
func (s *Store) SetProgress(ctx context.Context, id string, stage string, progress int) (*Job, error) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j, err := s.update(ctx, id, func(j *Job) error {
		if j.Status.IsTerminal() {
			return fmt.Errorf("%w: progress on %s", ErrInvalidTransition, j.Status)
		}
		if progress < j.Progress {
			return errSkip
		}
		j.Status = StatusRunning
		j.Progress = progress
		j.Stage = stage
		return nil
	})
	if errors.Is(err, errSkip) {
		return j, nil
	}
	return j, err
}

// SetResult completes a job with a payload. status must carry a result.
func (s *Store) SetResult(ctx context.Context, id string, status Status, result json.RawMessage) (*Job, error) {
	if !status.CarriesResult() || len(result) == 0 {
		return nil, ErrResultShape
	}
	return s.update(ctx, id, func(j *Job) error {
		if !CanTransition(j.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
		}
		j.Status = status
		j.Result = result
		j.Error = nil
		j.Progress = 100
		return nil
	})
}

// SetError fails a job.
func (s *Store) SetError(ctx context.Context, id string, code, message string) (*Job, error) {
	return s.update(ctx, id, func(j *Job) error {
		if !CanTransition(j.Status, StatusDoneFailed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusDoneFailed)
		}
		j.Status = StatusDoneFailed
		j.Result = nil
		j.Error = &Error{Code: code, Message: message}
		return nil
	})
}

// MarkStale force-fails a job only if it is still in flight when re-read.
// It reports whether the job was failed.
func (s *Store) MarkStale(ctx context.Context, id string, code, message string) (bool, error) {
	_, err := s.update(ctx, id, func(j *Job) error {
		if !j.Status.InFlight() {
			return errSkip
		}
		j.Status = StatusDoneFailed
		j.Result = nil
		j.Error = &Error{Code: code, Message: message}
		return nil
	})
	if errors.Is(err, errSkip) || errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Lookup returns the request id indexed under key and its job, if present.
// A dangling index entry yields the id with a nil job.
func (s *Store) Lookup(ctx context.Context, key string) (string, *Job, error) {
	raw, err := s.kv.Get(ctx, indexKey(key))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	id := string(raw)
	j, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return id, nil, nil
	}
	if err != nil {
		return id, nil, err
	}
	return id, j, nil
}

// FindByIdempotencyKey returns the most recent job for key created within
// freshWindow, or nil.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string, freshWindow time.Duration) (*Job, error) {
	_, j, err := s.Lookup(ctx, key)
	if err != nil || j == nil {
		return nil, err
	}
	if freshWindow > 0 && s.now().Sub(j.CreatedAt) > freshWindow {
		return nil, nil
	}
	return j, nil
}

// Claim points key at newID if the index still holds expectedID (empty
// means absent). On loss it returns the id that won.
func (s *Store) Claim(ctx context.Context, key, expectedID, newID string) (string, bool, error) {
	for i := 0; i < casAttempts; i++ {
		var (
			ok  bool
			err error
		)
		if expectedID == "" {
			ok, err = s.kv.SetNX(ctx, indexKey(key), []byte(newID), s.ttl)
		} else {
			ok, err = s.kv.CompareAndSwap(ctx, indexKey(key), []byte(expectedID), []byte(newID), s.ttl)
		}
		if err != nil {
			return "", false, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return newID, true, nil
		}

		raw, err := s.kv.Get(ctx, indexKey(key))
		if errors.Is(err, kv.ErrNotFound) {
			expectedID = ""
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("claim idempotency key: %w", err)
		}
		return string(raw), false, nil
	}
	return "", false, ErrConflict
}
