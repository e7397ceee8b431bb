package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	ready atomic.Bool
}

func (f *fakeLookup) CheckReady() bool { return f.ready.Load() }

func (f *fakeLookup) Stats() map[string]any {
	return map[string]any{"item_count": 3}
}

type fakeBridge struct{ connected bool }

func (f fakeBridge) IsConnected() bool    { return f.connected }
func (f fakeBridge) IsReconnecting() bool { return !f.connected }

func TestHealthServer_Ready(t *testing.T) {
	lookup := &fakeLookup{}
	h := NewHealthServer("127.0.0.1:0", lookup, fakeBridge{connected: true}, nil, nil)
	handler := h.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	lookup.ready.Store(true)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthServer_Status(t *testing.T) {
	lookup := &fakeLookup{}
	lookup.ready.Store(true)
	h := NewHealthServer("127.0.0.1:0", lookup, fakeBridge{connected: true}, nil, nil)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Healthy)
	assert.True(t, status.Bridge.Connected)
	assert.False(t, status.NATS.Enabled)
	assert.True(t, status.Lookup.Ready)
	assert.Equal(t, float64(3), status.Lookup.Stats["item_count"])
}

func TestHealthServer_StartStop(t *testing.T) {
	InitMetrics()
	h := NewHealthServer("127.0.0.1:0", &fakeLookup{}, nil, nil, nil)
	require.NoError(t, h.Start(context.Background()))

	res, err := http.Get("http://" + h.Addr() + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	require.NoError(t, h.Stop(context.Background()))

	// 停止后不再健康
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
