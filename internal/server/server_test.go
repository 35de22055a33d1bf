package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/ncobase/placesearch/search"
	"github.com/ncobase/placesearch/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placesJSON = `{"places":[
	{"id":"p1","name":"Slice House","rating":4.6,"review_count":320,"location":{"lat":32.081,"lng":34.781},"open_now":true,"types":["pizza"]},
	{"id":"p2","name":"Corner Pizza","rating":4.1,"review_count":40,"location":{"lat":32.09,"lng":34.79},"types":["pizza"]}
]}`

func writeConfig(t *testing.T, redisAddr, providerURL string) *config.Config {
	t.Helper()
	yaml := fmt.Sprintf(`
run_mode: test
data:
  redis:
    addr: %q
    key_prefix: test
provider:
  base_url: %q
realtime:
  relay_channel: placesearch:events
pipeline:
  workers: 2
  queue_size: 8
  deadline: 5s
`, redisAddr, providerURL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(placesJSON))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func request(h http.Handler, method, path, body, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("X-Session-ID", session)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerAsyncSearch(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr(), newProvider(t).URL)

	ctx := context.Background()
	s, err := New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	s.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		s.Cleanup(stopCtx)
	}()
	router := s.SetupRouter()

	w := request(router, http.MethodPost, "/v1/search",
		`{"query":"pizza near me","location":{"lat":32.08,"lng":34.78}}`, "s1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var acc service.Accepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acc))
	require.NotEmpty(t, acc.RequestID)

	var res *httptest.ResponseRecorder
	require.Eventually(t, func() bool {
		res = request(router, http.MethodGet, acc.ResultURL, "", "s1")
		return res.Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	var out search.Response
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	assert.Equal(t, search.KindResults, out.Kind)
	assert.Len(t, out.Results, 2)

	// another session cannot read it
	w = request(router, http.MethodGet, acc.ResultURL, "", "s2")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// an identical request reuses the finished job
	w = request(router, http.MethodPost, "/v1/search",
		`{"query":"pizza near me","location":{"lat":32.08,"lng":34.78}}`, "s1")
	require.Equal(t, http.StatusAccepted, w.Code)
	var again service.Accepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, acc.RequestID, again.RequestID)
	assert.True(t, again.Reused)
}

func TestServerInProcessStore(t *testing.T) {
	cfg := writeConfig(t, "", newProvider(t).URL)

	ctx := context.Background()
	s, err := New(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, s.relay)
	s.Start(ctx)
	defer s.Cleanup(ctx)
	router := s.SetupRouter()

	w := request(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	w = request(router, http.MethodPost, "/v1/search", `{"query":"sushi in Tel Aviv","mode":"sync"}`, "s1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "placesearch_pipeline_runs_total")
}

func TestServerRequiresProvider(t *testing.T) {
	cfg := writeConfig(t, "", "")
	_, err := New(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
