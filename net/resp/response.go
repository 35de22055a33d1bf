package resp

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ncobase/placesearch/ecode"
)

// Exception is the failure envelope. Status and RetryAfter only shape the
// HTTP response and are not part of the body.
type Exception struct {
	Status     int           `json:"-"`
	Code       int           `json:"code"`
	Message    string        `json:"message"`
	Errors     any           `json:"errors,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// Error implements error.
func (e *Exception) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// WithRetryAfter sets the Retry-After hint.
func (e *Exception) WithRetryAfter(d time.Duration) *Exception {
	e.RetryAfter = d
	return e
}

type message struct {
	Message string `json:"message"`
}

// Success writes data with 200.
func Success(w http.ResponseWriter, data ...any) {
	WithStatusCode(w, http.StatusOK, data...)
}

// WithStatusCode writes a success payload with statusCode. A string payload
// becomes {"message": ...}; no payload becomes {"message": "ok"}. Error
// statuses are written as a failure envelope instead.
func WithStatusCode(w http.ResponseWriter, statusCode int, data ...any) {
	if statusCode < 200 || statusCode >= 400 {
		Fail(w, &Exception{Status: statusCode})
		return
	}

	var payload any = message{Message: "ok"}
	if len(data) > 0 && data[0] != nil {
		if s, ok := data[0].(string); ok {
			payload = message{Message: s}
		} else {
			payload = data[0]
		}
	}
	writeJSON(w, statusCode, payload)
}

// Fail writes a failure envelope. Missing fields are derived from each
// other; a nil exception is an internal error.
func Fail(w http.ResponseWriter, e *Exception) {
	if e == nil {
		e = &Exception{Code: ecode.ServerErr}
	}
	code, status := e.Code, e.Status
	if code == ecode.OK {
		code = ecode.FromHTTPStatus(status)
	}
	if status == 0 {
		status = ecode.ToHTTPStatus(code)
	}
	msg := e.Message
	if msg == "" {
		msg = ecode.Text(code)
	}
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	writeJSON(w, status, &Exception{Code: code, Message: msg, Errors: e.Errors})
}

func writeJSON(w http.ResponseWriter, code int, res any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}
