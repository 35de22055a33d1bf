package job

import "time"

// Action is the dedup outcome.
type Action string

const (
	ActionReuse  Action = "REUSE"
	ActionNewJob Action = "NEW_JOB"
)

// Decision explains how a duplicate request is handled. Stale is set when
// the candidate should be force-failed before starting a new job.
type Decision struct {
	Action Action
	Reason string
	Stale  bool
}

// Decide applies the dedup matrix to a candidate found by idempotency key.
// PENDING candidates are judged like RUNNING ones.
func Decide(candidate *Job, hasSubscriber bool, now time.Time, staleAfter time.Duration) Decision {
	if candidate == nil {
		return Decision{Action: ActionNewJob, Reason: "no_candidate"}
	}

	switch candidate.Status {
	case StatusDoneSuccess:
		return Decision{Action: ActionReuse, Reason: "completed"}
	case StatusDoneFailed:
		return Decision{Action: ActionNewJob, Reason: "previous_failed"}
	case StatusPending, StatusRunning:
		if hasSubscriber {
			return Decision{Action: ActionReuse, Reason: "running_observed"}
		}
		if IsStale(candidate, now, staleAfter) {
			return Decision{Action: ActionNewJob, Reason: "running_stale", Stale: true}
		}
		return Decision{Action: ActionReuse, Reason: "running_fresh"}
	default:
		return Decision{Action: ActionReuse, Reason: "terminal"}
	}
}

// IsStale reports whether an in-flight job has exceeded the threshold since
// its last update or since creation.
func IsStale(j *Job, now time.Time, staleAfter time.Duration) bool {
	if j == nil || !j.Status.InFlight() || staleAfter <= 0 {
		return false
	}
	return now.Sub(j.UpdatedAt) > staleAfter || now.Sub(j.CreatedAt) > staleAfter
}
