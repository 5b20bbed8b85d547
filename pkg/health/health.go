// Package health provides liveness and readiness probe endpoints backed by
// periodically executed checks. Checks use consecutive failure/success
// thresholds so a single slow probe does not flip the reported state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// probe holds one registered check and its runtime state. The consecutive
// counters are touched only by the single loop goroutine; healthy and lastErr
// are shared with HTTP handlers and use atomics.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	failAfter int
	okAfter   int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.okAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error(), true
	}
	return "check is unhealthy", true
}

// Health tracks liveness and readiness probes for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state. Call SetReady(true) once
// initialization finishes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that gates the /livez endpoint.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a check that gates the /readyz endpoint.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{
		name:      name,
		timeout:   timeout,
		check:     check,
		failAfter: 3,
		okAfter:   1,
	}
	p.healthy.Store(true)
	return p
}

// Start launches one goroutine per registered probe, each executing at the
// given interval until Stop is called or ctx is cancelled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe{}, h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set false during graceful
// shutdown to drain traffic before closing listeners.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and all readiness
// probes currently pass.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readiness
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness probes pass, 503 with
// per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe{}, h.liveness...)
	h.mu.RUnlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 while the service is marked ready and
// all readiness probes pass.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe{}, h.readiness...)
	h.mu.RUnlock()

	failed := failures(probes)
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

func failures(probes []*probe) map[string]string {
	failed := make(map[string]string)
	for _, p := range probes {
		if msg, bad := p.failure(); bad {
			failed[p.name] = msg
		}
	}
	return failed
}

func writeStatus(w http.ResponseWriter, failed map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failed}
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
