// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

// fakeEngine satisfies the Engine interface over a real state store.
type fakeEngine struct {
	mu        sync.Mutex
	store     *spectralink.Store
	syncCmds  []string
	asyncCmds []string
	syncErr   error
	asyncErr  error
	syncLine  string
	connected bool
}

func newFakeEngine() *fakeEngine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fakeEngine{
		store:     spectralink.NewStore(log, 50.0),
		syncLine:  "ACK:OK",
		connected: true,
	}
}

func (f *fakeEngine) SendSync(ctx context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return "", f.syncErr
	}
	f.syncCmds = append(f.syncCmds, cmd)
	return f.syncLine, nil
}

func (f *fakeEngine) SendAsync(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.asyncErr != nil {
		return f.asyncErr
	}
	f.asyncCmds = append(f.asyncCmds, cmd)
	return nil
}

func (f *fakeEngine) Reconnect(ctx context.Context) error { return nil }
func (f *fakeEngine) IsConnected() bool                   { return f.connected }
func (f *fakeEngine) Port() string                        { return "/dev/fake0" }
func (f *fakeEngine) QueueDepth() int                     { return 0 }
func (f *fakeEngine) Store() *spectralink.Store           { return f.store }

func (f *fakeEngine) sentAsync() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.asyncCmds))
	copy(out, f.asyncCmds)
	return out
}

func (f *fakeEngine) sentSync() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.syncCmds))
	copy(out, f.syncCmds)
	return out
}

func newTestServer(t *testing.T, engine *fakeEngine) *httptest.Server {
	t.Helper()
	cfg := spectralink.DefaultConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(engine, &cfg, log)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), "body: %s", data)
	}
	return resp, decoded
}

func TestStatusEndpoint(t *testing.T) {
	engine := newFakeEngine()
	engine.store.RecordTemperature(1, 33.5)
	ts := newTestServer(t, engine)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	require.Contains(t, body, "state")
	state := body["state"].(map[string]any)
	assert.Equal(t, 33.5, state["sensor1_temp"])
	assert.Equal(t, "/dev/fake0", body["port"])
}

func TestPingEndpoint(t *testing.T) {
	ts := newTestServer(t, newFakeEngine())
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/ping", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])
}

func TestArmRefusedDuringAlarm(t *testing.T) {
	engine := newFakeEngine()
	engine.store.RecordTemperature(1, 54.0)
	engine.store.SetAlarm(true, 56.0)
	ts := newTestServer(t, engine)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/system/arm", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Empty(t, engine.sentSync(), "no command may reach the controller")
}

func TestArmAllowedUnderBypass(t *testing.T) {
	engine := newFakeEngine()
	// No sensors connected: monitoring requirement drops and alarm gating
	// is suspended.
	engine.store.RecomputeMode()
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/system/arm", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, engine.sentSync(), spectralink.CmdArm)
	assert.True(t, engine.store.Snapshot().Armed)
}

func TestMotorStartRequiresArming(t *testing.T) {
	engine := newFakeEngine()
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/motor/1/start", `{"speed":50}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, engine.sentAsync())
}

func TestMotorStartQueuesCommand(t *testing.T) {
	engine := newFakeEngine()
	engine.store.SetArmed(true)
	ts := newTestServer(t, engine)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/motor/3/start", `{"speed":75}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["motor"])
	assert.Contains(t, engine.sentAsync(), "MOTOR:3:START:75")
}

func TestMotorValidation(t *testing.T) {
	engine := newFakeEngine()
	engine.store.SetArmed(true)
	ts := newTestServer(t, engine)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"motor out of range", "/api/motor/7/start", `{"speed":50}`},
		{"speed out of range", "/api/motor/1/start", `{"speed":150}`},
		{"missing speed", "/api/motor/1/start", `{}`},
		{"non-numeric motor", "/api/motor/abc/start", `{"speed":50}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doJSON(t, http.MethodPost, ts.URL+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestLevitationGroup(t *testing.T) {
	engine := newFakeEngine()
	engine.store.SetArmed(true)
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/levitation/start", `{"speed":40}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, engine.sentAsync(), "LEV_GROUP:START:40")

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/levitation/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, engine.sentAsync(), "LEV_GROUP:STOP")
}

func TestEmergencyStopLatchesImmediately(t *testing.T) {
	engine := newFakeEngine()
	engine.store.SetArmed(true)
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/emergency-stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	v := engine.store.Snapshot()
	assert.True(t, v.EmergencyStopped)
	assert.False(t, v.Armed)
	assert.Contains(t, engine.sentAsync(), spectralink.CmdEmergencyStop)
}

func TestEmergencyStopLatchesEvenWhenQueueFails(t *testing.T) {
	engine := newFakeEngine()
	engine.asyncErr = spectralink.ErrQueueFull
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/emergency-stop", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, engine.store.Snapshot().EmergencyStopped,
		"local latch must hold even when delivery fails")
}

func TestLinkDownMapsTo503(t *testing.T) {
	engine := newFakeEngine()
	engine.syncErr = spectralink.ErrLinkDown
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/system/arm", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBrakeActions(t *testing.T) {
	engine := newFakeEngine()
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/brake/on", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, engine.store.Snapshot().BrakeActive)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/brake/sideways", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayBrakeOffDisarms(t *testing.T) {
	engine := newFakeEngine()
	engine.store.SetArmed(true)
	engine.store.SetRelayBrake(true)
	ts := newTestServer(t, engine)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/relay-brake/off", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	v := engine.store.Snapshot()
	assert.False(t, v.RelayBrakeActive)
	assert.False(t, v.Armed)
}

func TestTemperatureEndpoint(t *testing.T) {
	engine := newFakeEngine()
	engine.store.RecordTemperature(1, 33.45)
	engine.store.RecordTemperature(2, 34.12)
	ts := newTestServer(t, engine)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/temperature", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 34.12, body["current_temp"])
	assert.Equal(t, true, body["sensor1_connected"])
	assert.Equal(t, true, body["safe_to_operate"])
	assert.Equal(t, true, body["can_arm_system"])
	require.Contains(t, body, "thresholds")
	require.Contains(t, body, "history")
}

func TestBasicAuth(t *testing.T) {
	engine := newFakeEngine()
	cfg := spectralink.DefaultConfig()
	cfg.Server.Username = "operator"
	cfg.Server.Password = "secret"
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(engine, &cfg, log)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/ping", nil)
	req.SetBasicAuth("operator", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
