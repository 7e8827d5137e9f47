package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DefiantLabs/warden-explorer/core"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/DefiantLabs/warden-explorer/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	snapshot   model.UptimeSnapshot
	refreshErr error
	polling    bool
	interval   time.Duration
}

func (f *fakeTracker) Snapshot() model.UptimeSnapshot { return f.snapshot }

func (f *fakeTracker) Validator(operator string) (model.ValidatorUptimeRecord, bool) {
	for _, v := range f.snapshot.Validators {
		if v.OperatorAddress == operator {
			return v, true
		}
	}
	return model.ValidatorUptimeRecord{}, false
}

func (f *fakeTracker) SetWindowSize(_ context.Context, size int) error {
	if size <= 0 {
		return core.ErrInvalidWindowSize
	}
	if size > 10000 {
		return fmt.Errorf("%w: %d exceeds the maximum of 10000", core.ErrInvalidWindowSize, size)
	}
	f.snapshot.WindowSize = size
	return nil
}

func (f *fakeTracker) Refresh(context.Context) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.snapshot.LastProcessedHeight++
	return nil
}

func (f *fakeTracker) SetPolling(enabled bool) error {
	f.polling = enabled
	return nil
}

func (f *fakeTracker) SetInterval(interval time.Duration) error {
	f.interval = interval
	return nil
}

func (f *fakeTracker) Polling() bool { return f.polling }

func (f *fakeTracker) PollInterval() (time.Duration, time.Duration) {
	if f.interval == 0 {
		return 0, 6 * time.Second
	}
	return f.interval, f.interval
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeTracker) {
	gin.SetMode(gin.TestMode)
	tracker := &fakeTracker{
		polling: true,
		snapshot: model.UptimeSnapshot{
			LastProcessedHeight: 110,
			WindowSize:          100,
			Validators: []model.ValidatorUptimeRecord{
				{OperatorAddress: "wardenvaloper1abc", Moniker: "alpha", SignedCount: 4, MissedCount: 1, UptimePercent: 80},
			},
		},
	}
	return NewRouter(service.NewUptime(tracker), prometheus.NewRegistry()), tracker
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealthcheck(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/gcphealth", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetSnapshot(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/uptime", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot model.UptimeSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(110), snapshot.LastProcessedHeight)
	require.Len(t, snapshot.Validators, 1)
	assert.Equal(t, 80.0, snapshot.Validators[0].UptimePercent)
}

func TestGetValidator(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/uptime/wardenvaloper1abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec model.ValidatorUptimeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "alpha", rec.Moniker)

	w = doRequest(r, http.MethodGet, "/uptime/wardenvaloper1zzz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetWindowSize(t *testing.T) {
	r, tracker := newTestRouter(t)

	w := doRequest(r, http.MethodPut, "/uptime/window", `{"size": 0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 100, tracker.snapshot.WindowSize)

	w = doRequest(r, http.MethodPut, "/uptime/window", `{"size": 1125899906842624}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds the maximum")
	assert.Equal(t, 100, tracker.snapshot.WindowSize)

	w = doRequest(r, http.MethodPut, "/uptime/window", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPut, "/uptime/window", `{"size": 50}`)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot model.UptimeSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 50, snapshot.WindowSize)
}

func TestRefresh(t *testing.T) {
	r, tracker := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/uptime/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(111), tracker.snapshot.LastProcessedHeight)

	tracker.refreshErr = &core.StatusFetchError{Err: errors.New("connection refused")}
	w = doRequest(r, http.MethodPost, "/uptime/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestPolling(t *testing.T) {
	r, tracker := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/uptime/polling", "")
	require.Equal(t, http.StatusOK, w.Code)
	var state service.PollingState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.Enabled)
	assert.Equal(t, "auto", state.Interval)
	assert.Equal(t, "6s", state.EffectiveInterval)

	w = doRequest(r, http.MethodPut, "/uptime/polling", `{"enabled": false, "interval": "10s"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.False(t, state.Enabled)
	assert.Equal(t, "10s", state.Interval)
	assert.False(t, tracker.polling)

	w = doRequest(r, http.MethodPut, "/uptime/polling", `{"interval": "500ms"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 10*time.Second, tracker.interval)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
