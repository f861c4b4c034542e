package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"griddca/grid"
	"griddca/venue/paper"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pv := paper.New("XAUUSD", 1000)
	pv.SetTick(100.00, 100.04, time.Now())
	ctl := grid.NewController(pv, grid.Config{
		Symbol:     "XAUUSD",
		BaseAmount: 0.1,
		Builder: grid.BuilderConfig{
			EntryOffset:    0.8,
			ProfitDistance: 2.0,
			SpacingScale:   12,
			ScalingTable:   []float64{1, 1, 2, 2, 3},
		},
	}, nil, nil)
	return NewServer(ctl, nil, 0)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap grid.StatusSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Equal(t, "XAUUSD", snap.Symbol)
	require.Equal(t, grid.StatePaused, snap.State)
}

func TestControlEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/start", "/api/pause", "/api/stop-after-cycle", "/api/emergency/ack",
	} {
		w := doRequest(s, http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestPutGuards(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodPut, "/api/guards", `{"max_spread": 0.5, "allow_cycle_completion": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPut, "/api/guards", `{"max_spread": "bad"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodGet, "/api/guards", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPutBaseAmount(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodPut, "/api/base-amount", `{"amount": 0.25}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPut, "/api/base-amount", `{"amount": -1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCyclesWithoutStore(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/cycles", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
