package resp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ncobase/placesearch/ecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessWritesPayload(t *testing.T) {
	w := httptest.NewRecorder()
	WithStatusCode(w, http.StatusAccepted, map[string]string{"requestId": "r1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"requestId":"r1"}`, w.Body.String())
}

func TestSuccessRawJSON(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, json.RawMessage(`{"kind":"results","results":[]}`))
	assert.JSONEq(t, `{"kind":"results","results":[]}`, w.Body.String())
}

func TestSuccessMessageOnly(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, "done")
	assert.JSONEq(t, `{"message":"done"}`, w.Body.String())

	w = httptest.NewRecorder()
	Success(w)
	assert.JSONEq(t, `{"message":"ok"}`, w.Body.String())
}

func TestErrorStatusBecomesFailure(t *testing.T) {
	w := httptest.NewRecorder()
	WithStatusCode(w, http.StatusNotFound, "ignored")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":-404,"message":"Resource not found"}`, w.Body.String())
}

func TestFail(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, Forbidden("not yours"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body Exception
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ecode.AccessDenied, body.Code)
	assert.Equal(t, "not yours", body.Message)

	w = httptest.NewRecorder()
	Fail(w, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":-500,"message":"Internal server error"}`, w.Body.String())
}

func TestFailDetailsAndRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, Unavailable("busy", map[string]int{"queued": 3}).WithRetryAfter(1500*time.Millisecond))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":-503,"message":"busy","errors":{"queued":3}}`, w.Body.String())
}
