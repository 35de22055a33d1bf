package realtime

import (
	"encoding/json"
	"time"
)

// Channel is the logical channel all search events travel on.
const Channel = "search"

// Kind is the event type.
type Kind string

const (
	KindStatus            Kind = "status"
	KindProgress          Kind = "progress"
	KindReady             Kind = "ready"
	KindClarify           Kind = "clarify"
	KindError             Kind = "error"
	KindAssistantProgress Kind = "assistant_progress"
	KindNarration         Kind = "narration"
	KindNarrationDeferred Kind = "narration_deferred"
	KindSuggestedActions  Kind = "suggested_actions"
	KindResults           Kind = "results"

	KindSubscribed     Kind = "subscribed"
	KindSubscribeError Kind = "subscribe_error"
	KindPong           Kind = "pong"
)

// Event is the single wire shape for live and replayed messages.
type Event struct {
	Channel   string          `json:"channel"`
	Type      Kind            `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"ts"`
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Build constructs an event. Every producer, live or replay, goes through it.
func Build(kind Kind, requestID, sessionID string, data any) *Event {
	ev := &Event{
		Channel:   Channel,
		Type:      kind,
		RequestID: requestID,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// Status values carried by status events.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// StatusPayload is the data of a status event.
type StatusPayload struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// ProgressPayload is the data of a progress event.
type ProgressPayload struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// ReadyPayload is the data of a ready event.
type ReadyPayload struct {
	ResultCount int `json:"resultCount"`
}

// ClarifyPayload is the data of a clarify event.
type ClarifyPayload struct {
	Question string `json:"question"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NarrationPayload is the data of narration events.
type NarrationPayload struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// SuggestedAction is one follow-up a client may offer.
type SuggestedAction struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// ResultsPayload is the data of a results event.
type ResultsPayload struct {
	Results json.RawMessage `json:"results"`
}

// Status builds a status event.
func Status(requestID, sessionID, status string, progress int) *Event {
	return Build(KindStatus, requestID, sessionID, StatusPayload{Status: status, Progress: progress})
}

// Progress builds a progress event.
func Progress(requestID, sessionID, stage string, percent int, message string) *Event {
	return Build(KindProgress, requestID, sessionID, ProgressPayload{Stage: stage, Percent: percent, Message: message})
}

// Ready builds a ready event.
func Ready(requestID, sessionID string, count int) *Event {
	return Build(KindReady, requestID, sessionID, ReadyPayload{ResultCount: count})
}

// Clarify builds a clarify event.
func Clarify(requestID, sessionID, question string) *Event {
	return Build(KindClarify, requestID, sessionID, ClarifyPayload{Question: question})
}

// Failure builds an error event.
func Failure(requestID, sessionID, code, message string) *Event {
	return Build(KindError, requestID, sessionID, ErrorPayload{Code: code, Message: message})
}

// Narration builds a final narration event. Deferred selects the variant
// delivered to clients that poll for results.
func Narration(requestID, sessionID, text, language string, deferred bool) *Event {
	kind := KindNarration
	if deferred {
		kind = KindNarrationDeferred
	}
	return Build(kind, requestID, sessionID, NarrationPayload{Text: text, Language: language})
}

// AssistantProgress builds an interim narration event.
func AssistantProgress(requestID, sessionID, text string) *Event {
	return Build(KindAssistantProgress, requestID, sessionID, NarrationPayload{Text: text})
}

// Suggestions builds a suggested-actions event.
func Suggestions(requestID, sessionID string, actions []SuggestedAction) *Event {
	return Build(KindSuggestedActions, requestID, sessionID, actions)
}

// Results builds a recommendation list event.
func Results(requestID, sessionID string, results json.RawMessage) *Event {
	return Build(KindResults, requestID, sessionID, ResultsPayload{Results: results})
}
