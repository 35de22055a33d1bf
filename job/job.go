// Package job tracks search jobs in the shared store and decides when a
// duplicate request may reuse an existing job.
package job

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrConflict          = errors.New("job update conflict")
	ErrResultShape       = errors.New("result must accompany a success-shaped terminal status")
)

// Status is the job lifecycle state.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusRunning     Status = "RUNNING"
	StatusDoneSuccess Status = "DONE_SUCCESS"
	StatusDoneFailed  Status = "DONE_FAILED"
	StatusDoneClarify Status = "DONE_CLARIFY"
	StatusDoneStopped Status = "DONE_STOPPED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDoneSuccess, StatusDoneFailed, StatusDoneClarify, StatusDoneStopped:
		return true
	}
	return false
}

// CarriesResult reports whether s is a terminal state that holds a payload.
func (s Status) CarriesResult() bool {
	return s == StatusDoneSuccess || s == StatusDoneClarify || s == StatusDoneStopped
}

// InFlight reports PENDING or RUNNING.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusRunning
}

// CanTransition reports whether from -> to moves forward.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to != StatusPending
	case StatusRunning:
		return to == StatusRunning || to.IsTerminal()
	default:
		return false
	}
}

// Error is the stable failure envelope stored on failed jobs.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is one tracked pipeline run.
type Job struct {
	RequestID      string          `json:"request_id"`
	SessionID      string          `json:"session_id"`
	OwnerUserID    string          `json:"owner_user_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Query          string          `json:"query"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	Stage          string          `json:"stage,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// CreateParams are the caller-supplied fields of a new job.
type CreateParams struct {
	RequestID      string
	SessionID      string
	OwnerUserID    string
	IdempotencyKey string
	Query          string
}
