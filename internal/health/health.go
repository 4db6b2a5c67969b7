// Package health serves the liveness and readiness endpoints.
//
//   - /healthz always returns 200 while the process can serve HTTP.
//   - /readyz runs every registered [Checker]. A failing required checker
//     turns the response into 503; a failing optional one only marks the
//     service "degraded".
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe.
type Checker struct {
	// Name is the key in the JSON response (e.g. "content", "narration").
	Name string

	// Optional checkers degrade the service instead of failing it. The
	// voice features are optional: lessons stay readable without them.
	Optional bool

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

// Result is the readiness report.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers in order on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.Evaluate(r.Context())
	status := http.StatusOK
	if res.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Evaluate runs every checker and returns the aggregated result.
func (h *Handler) Evaluate(ctx context.Context) Result {
	res := Result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		if err == nil {
			res.Checks[c.Name] = "ok"
			continue
		}
		res.Checks[c.Name] = "fail: " + err.Error()
		switch {
		case !c.Optional:
			res.Status = "fail"
		case res.Status == "ok":
			res.Status = "degraded"
		}
	}
	return res
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Pinger is implemented by storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker returns a required checker that pings p.
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// ErrQuotaExhausted is reported by [QuotaChecker] once the narration quota
// latch is set.
var ErrQuotaExhausted = errors.New("synthesis quota exhausted")

// ErrMissingKey is reported by [KeyChecker].
var ErrMissingKey = errors.New("api key not configured")

// QuotaChecker returns an optional checker that fails while blocked
// reports true.
func QuotaChecker(name string, blocked func() bool) Checker {
	return Checker{Name: name, Optional: true, Check: func(context.Context) error {
		if blocked() {
			return ErrQuotaExhausted
		}
		return nil
	}}
}

// KeyChecker returns an optional checker that fails when key is empty.
func KeyChecker(name, key string) Checker {
	return Checker{Name: name, Optional: true, Check: func(context.Context) error {
		if key == "" {
			return ErrMissingKey
		}
		return nil
	}}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
