// Package health provides the HTTP liveness and readiness probes for the
// captioning agent.
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; 200 only when every registered [Check] passes.
//
// Responses are JSON with a "status" field ("ok" or "fail"), a millisecond
// "timestamp", and for readiness a "checks" map with each probe's outcome.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds how long a single readiness check may run.
const probeTimeout = 5 * time.Second

// Check probes one dependency (the conferencing server, an STT endpoint). It
// must respect context cancellation and return nil when healthy.
type Check func(ctx context.Context) error

// report is the JSON response body for both probes.
type report struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Safe for concurrent use; checks are
// fixed at construction.
type Handler struct {
	checks map[string]Check
}

// New creates a Handler evaluating the given named checks on every /readyz
// request. Checks run concurrently.
func New(checks map[string]Check) *Handler {
	c := make(map[string]Check, len(checks))
	for name, fn := range checks {
		c[name] = fn
	}
	return &Handler{checks: c}
}

// Healthz always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok", Timestamp: time.Now().UnixMilli()})
}

// Readyz runs every check and returns 200 only when all pass. Each check gets
// its own probeTimeout derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
		allOK   = true
	)

	g, ctx := errgroup.WithContext(r.Context())
	for name, check := range h.checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := check(probeCtx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = "fail: " + err.Error()
				allOK = false
			} else {
				results[name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := report{Status: "ok", Timestamp: time.Now().UnixMilli(), Checks: results}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
