package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func passingCheck() CheckFunc {
	return func(context.Context) error { return nil }
}

func failingCheck(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, handler http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		check      CheckFunc
		wantCode   int
		wantStatus string
	}{
		{name: "passing", runs: 3, check: passingCheck(), wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "below failure threshold", runs: 2, check: failingCheck("temporary"), wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "at failure threshold", runs: 3, check: failingCheck("connection refused"), wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("db", time.Second, tt.check)
			runN(h.liveness[0], tt.runs)

			code, body := get(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body.Status)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "connection refused", body.Checks["db"])
			}
		})
	}
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	code, body := get(t, New().LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("storage", time.Second, passingCheck())
	h.AddReadinessCheck("cache", time.Second, failingCheck("cold"), WithThresholds(1, 1))

	code, body := get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])

	h.SetReady(true)
	code, _ = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code, "checks start healthy")
	assert.True(t, h.IsReady())

	runN(h.readiness[1], 1)
	code, body = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "cold", body.Checks["cache"])
	assert.NotContains(t, body.Checks, "storage")
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, body = get(t, h.ReadyEndpoint)
	assert.Contains(t, body.Checks, "_readiness")
}

func TestProbe_Recovers(t *testing.T) {
	var (
		mu   sync.Mutex
		fail = true
	)
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	p := h.liveness[0]

	runN(p, 2)
	_, failed := p.failure()
	require.True(t, failed)

	mu.Lock()
	fail = false
	mu.Unlock()

	runN(p, 1)
	_, failed = p.failure()
	assert.True(t, failed, "one success is below the success threshold")
	runN(p, 1)
	_, failed = p.failure()
	assert.False(t, failed)
}

func TestStartAndStop(t *testing.T) {
	h := New()
	h.AddReadinessCheck("down", time.Second, failingCheck("down"), WithThresholds(1, 1))
	h.SetReady(true)

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pinger{})(context.Background()))
	err := PingCheck(pinger{err: errors.New("refused")})(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
