package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/char5742/scroll-offset-reader/internal/config"
	"github.com/char5742/scroll-offset-reader/internal/features"
	"github.com/char5742/scroll-offset-reader/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*testService
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := newTestService(t, nil)
	server := NewServer(svc.ScrollService, 0, nil)
	return &testServer{testService: svc, handler: server.Handler()}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthAndStatusPage(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	decodeResponse(t, rec, &health)
	assert.Equal(t, "ok", health["status"])

	rec = s.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/service/status")

	rec = s.do(t, http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReaderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/readers/feed", `{"tick_interval":"100ms","min_delta":1,"initial":{"dx":0,"dy":-2}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/readers/feed", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/readers", "")
	var list map[string][]string
	decodeResponse(t, rec, &list)
	assert.Equal(t, []string{"feed"}, list["readers"])

	rec = s.do(t, http.MethodGet, "/api/readers/feed/offset", "")
	var offset types.Offset
	decodeResponse(t, rec, &offset)
	assert.Equal(t, types.Offset{DY: -2}, offset)

	var raw map[string]bool
	rec = s.do(t, http.MethodPost, "/api/readers/feed/raw", `{"dx":0,"dy":-0.5}`)
	decodeResponse(t, rec, &raw)
	assert.False(t, raw["accepted"])

	rec = s.do(t, http.MethodPost, "/api/readers/feed/raw", `{"dx":-3,"dy":-0.5}`)
	decodeResponse(t, rec, &raw)
	assert.True(t, raw["accepted"])

	require.Eventually(t, func() bool {
		s.clock.Advance(100 * time.Millisecond)
		rec := s.do(t, http.MethodGet, "/api/readers/feed/offset", "")
		var got types.Offset
		return json.NewDecoder(rec.Body).Decode(&got) == nil && got.Equal(types.Offset{DX: -3, DY: -0.5})
	}, 5*time.Second, 5*time.Millisecond)

	rec = s.do(t, http.MethodDelete, "/api/readers/feed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/readers/feed", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMountReaderValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "zero interval", body: `{"tick_interval":"0s"}`},
		{name: "negative interval", body: `{"tick_interval":"-1s"}`},
		{name: "unparsable interval", body: `{"tick_interval":"soon"}`},
		{name: "negative min delta", body: `{"min_delta":-1}`},
		{name: "malformed body", body: `{"min_delta":`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/readers/broken", test.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			decodeResponse(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Empty(t, s.Registry().Names())
}

func TestUnknownReader(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/readers/missing/raw", `{"dx":1,"dy":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/readers/missing/offset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/readers/missing/raw", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/config", "")
	var cfg config.Config
	decodeResponse(t, rec, &cfg)
	assert.Equal(t, features.DefaultMinDelta, cfg.Sampler.MinDelta)

	rec = s.do(t, http.MethodPut, "/api/config", `{"sampler":{"min_delta":-1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, features.DefaultMinDelta, s.Config().Sampler.MinDelta)

	rec = s.do(t, http.MethodPut, "/api/config", `{"sampler":{"min_delta":5},"log":{"level":"debug"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5.0, s.Config().Sampler.MinDelta)
	assert.Equal(t, features.DefaultTickInterval, s.Config().Sampler.TickInterval.Std())
	assert.Equal(t, "debug", s.Config().Log.Level)

	// 時間間隔はリーダーのマウントと同じ文字列表記
	rec = s.do(t, http.MethodPut, "/api/config", `{"sampler":{"tick_interval":"100ms"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100*time.Millisecond, s.Config().Sampler.TickInterval.Std())

	var raw map[string]map[string]interface{}
	decodeResponse(t, s.do(t, http.MethodGet, "/api/config", ""), &raw)
	assert.Equal(t, "100ms", raw["sampler"]["tick_interval"])

	path := filepath.Join(t.TempDir(), "saved.toml")
	rec = s.do(t, http.MethodPost, "/api/config/save", `{"path":"`+path+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(path)
	require.NoError(t, err)

	saved, err := config.ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, saved.Sampler.MinDelta)
}

func TestServiceEndpoints(t *testing.T) {
	s := newTestServer(t)

	var status map[string]string
	decodeResponse(t, s.do(t, http.MethodGet, "/api/service/status", ""), &status)
	assert.Equal(t, "stopped", status["status"])

	decodeResponse(t, s.do(t, http.MethodPost, "/api/service/stop", ""), &status)
	assert.Equal(t, "not_running", status["status"])

	decodeResponse(t, s.do(t, http.MethodPost, "/api/service/start", ""), &status)
	assert.Equal(t, "started", status["status"])

	decodeResponse(t, s.do(t, http.MethodPost, "/api/service/start", ""), &status)
	assert.Equal(t, "already_running", status["status"])

	s.mouse.wheel(-1)
	require.Eventually(t, func() bool {
		s.clock.Advance(features.DefaultTickInterval)
		rec := s.do(t, http.MethodGet, "/api/readers/device/offset", "")
		var got types.Offset
		return rec.Code == http.StatusOK && json.NewDecoder(rec.Body).Decode(&got) == nil && got.Equal(types.Offset{DY: -40})
	}, 5*time.Second, 5*time.Millisecond)

	decodeResponse(t, s.do(t, http.MethodPost, "/api/service/stop", ""), &status)
	assert.Equal(t, "stopped", status["status"])
}

func TestStartServiceFailure(t *testing.T) {
	s := newTestServer(t)
	s.opts.ScanDevices = func() ([]features.Device, error) {
		return nil, errors.New("no input directory")
	}

	rec := s.do(t, http.MethodPost, "/api/service/start", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(ErrReaderNotFound))
	assert.Equal(t, http.StatusConflict, errorStatus(ErrReaderExists))
	assert.Equal(t, http.StatusBadRequest, errorStatus(ErrInvalidReaderName))
	assert.Equal(t, http.StatusBadRequest, errorStatus(features.ErrInvalidMinDelta))
	assert.Equal(t, http.StatusBadRequest, errorStatus(config.ErrInvalidConfig))
	assert.Equal(t, http.StatusServiceUnavailable, errorStatus(ErrServiceClosed))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(errors.New("boom")))
}
