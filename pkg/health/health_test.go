package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("a", time.Second, passing())
	h.AddLivenessCheck("b", time.Second, passing())

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestLiveEndpoint_FailureThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))

	ctx := context.Background()
	p := h.liveness[0]

	// Two failures stay under the threshold of three.
	p.run(ctx)
	p.run(ctx)

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	p.run(ctx)

	w = httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestReadyEndpoint_ManualGate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, passing())

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)

	w = httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h.SetReady(false)

	w = httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyEndpoint_OneFailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, passing())
	h.AddReadinessCheck("cache", time.Second, failing("cache down"))
	h.SetReady(true)

	ctx := context.Background()
	for range 3 {
		h.readiness[1].run(ctx)
	}

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body.Checks, "cache")
	assert.NotContains(t, body.Checks, "db")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, passing())

	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady())

	for range 3 {
		h.readiness[0].check = failing("down")
		h.readiness[0].run(context.Background())
	}
	assert.False(t, h.IsReady())
}

func TestProbeRecovery(t *testing.T) {
	down := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	p := h.liveness[0]
	ctx := context.Background()

	for range 3 {
		p.run(ctx)
	}
	assert.False(t, p.healthy.Load())

	down = false
	p.run(ctx)
	assert.True(t, p.healthy.Load(), "one success should recover the probe")
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("noop", time.Second, passing())

	h.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}
