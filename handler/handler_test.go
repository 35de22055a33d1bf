package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/placesearch/ctxutil"
	"github.com/ncobase/placesearch/job"
	"github.com/ncobase/placesearch/realtime"
	"github.com/ncobase/placesearch/search"
	"github.com/ncobase/placesearch/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	lastReq   *search.Request
	lastCtx   context.Context
	submitErr error
	resultErr error
	view      *service.ResultView
}

func (f *fakeSearcher) Submit(ctx context.Context, req *search.Request) (*service.Accepted, error) {
	f.lastReq, f.lastCtx = req, ctx
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &service.Accepted{RequestID: "r1", ResultURL: service.ResultURL("r1")}, nil
}

func (f *fakeSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	f.lastReq, f.lastCtx = req, ctx
	return &search.Response{RequestID: "r2", Kind: search.KindResults, Results: []search.ResultItem{}}, nil
}

func (f *fakeSearcher) Result(_ context.Context, requestID, sessionID string) (*service.ResultView, error) {
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.view, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(opts).Register(r)
	return r
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSearchAsyncAccepted(t *testing.T) {
	s := &fakeSearcher{}
	r := newRouter(Options{Searcher: s})

	w := do(r, http.MethodPost, "/v1/search", `{"query":"pizza near me","location":{"lat":32.08,"lng":34.78}}`,
		map[string]string{"X-Session-ID": "s1", "X-User-ID": "u1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"requestId":"r1","resultUrl":"/v1/search/r1/result"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	require.NotNil(t, s.lastReq)
	assert.Equal(t, "pizza near me", s.lastReq.Query)
	assert.Equal(t, "s1", s.lastReq.SessionID)
	assert.Equal(t, "u1", s.lastReq.UserID)
	require.NotNil(t, s.lastReq.Location)
	assert.Equal(t, "s1", ctxutil.GetSessionID(s.lastCtx))
	assert.Equal(t, w.Header().Get("X-Trace-ID"), ctxutil.GetTraceID(s.lastCtx))
}

func TestSearchSync(t *testing.T) {
	s := &fakeSearcher{}
	r := newRouter(Options{Searcher: s})

	w := do(r, http.MethodPost, "/v1/search", `{"query":"sushi","mode":"sync"}`,
		map[string]string{"X-Session-ID": "s1", "X-Trace-ID": "trace-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	var body search.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "r2", body.RequestID)
	assert.Equal(t, "trace-1", w.Header().Get("X-Trace-ID"))
}

func TestSearchRejectsBadInput(t *testing.T) {
	r := newRouter(Options{Searcher: &fakeSearcher{}})

	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{"missing session", `{"query":"pizza"}`, nil},
		{"missing query", `{}`, map[string]string{"X-Session-ID": "s1"}},
		{"unknown mode", `{"query":"pizza","mode":"stream"}`, map[string]string{"X-Session-ID": "s1"}},
		{"rating out of range", `{"query":"pizza","filters":{"min_rating":9}}`, map[string]string{"X-Session-ID": "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/v1/search", tt.body, tt.headers)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSearchBusy(t *testing.T) {
	r := newRouter(Options{Searcher: &fakeSearcher{submitErr: service.ErrBusy}})
	w := do(r, http.MethodPost, "/v1/search", `{"query":"pizza"}`, map[string]string{"X-Session-ID": "s1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestResult(t *testing.T) {
	s := &fakeSearcher{view: &service.ResultView{
		StatusCode: http.StatusAccepted,
		Body:       service.PendingView{RequestID: "r1", Status: job.StatusRunning, Progress: 35},
	}}
	r := newRouter(Options{Searcher: s})

	w := do(r, http.MethodGet, "/v1/search/r1/result", "", map[string]string{"X-Session-ID": "s1"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"requestId":"r1","status":"RUNNING","progress":35}`, w.Body.String())

	s.view = &service.ResultView{StatusCode: http.StatusOK, Body: json.RawMessage(`{"requestId":"r1","kind":"results"}`)}
	w = do(r, http.MethodGet, "/v1/search/r1/result?session=s1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"requestId":"r1","kind":"results"}`, w.Body.String())
}

func TestResultErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newRouter(Options{Searcher: &fakeSearcher{resultErr: tt.err}})
		w := do(r, http.MethodGet, "/v1/search/r1/result", "", map[string]string{"X-Session-ID": "s1"})
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	stats := func() realtime.Stats { return realtime.Stats{Connections: 2, Subscriptions: 3} }

	r := newRouter(Options{Searcher: &fakeSearcher{}, Store: fakePinger{}, Stats: stats})
	w := do(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)
	assert.Contains(t, w.Body.String(), `"subscriptions":3`)

	r = newRouter(Options{Searcher: &fakeSearcher{}, Store: fakePinger{err: errors.New("connection refused")}, Stats: stats})
	w = do(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	r := newRouter(Options{Searcher: &fakeSearcher{}, Metrics: metrics})

	w := do(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics\n", w.Body.String())
}
