package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// KeyReporter reports how many keys the admission limiters currently track.
type KeyReporter interface {
	TrackedRateLimitKeys() int
	ActiveConcurrentKeys() int
}

// DropReporter reports events dropped by a background recorder.
type DropReporter interface {
	DroppedEvents() int64
}

// HealthChecker verifies component health.
type HealthChecker struct {
	router  *Router
	keys    KeyReporter
	events  DropReporter
	version string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(router *Router, keys KeyReporter, events DropReporter, version string) *HealthChecker {
	return &HealthChecker{
		router:  router,
		keys:    keys,
		events:  events,
		version: version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	switch {
	case h.router == nil:
		checks["router"] = "not configured"
	case h.router.Closed():
		checks["router"] = "closed"
		healthy = false
	default:
		checks["router"] = fmt.Sprintf("ok: %d methods", len(h.router.Methods()))
	}

	if h.keys != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d tracked keys", h.keys.TrackedRateLimitKeys())
		checks["concurrent_limiter"] = fmt.Sprintf("ok: %d active keys", h.keys.ActiveConcurrentKeys())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.events != nil {
		checks["events"] = "ok"
		if drops := h.events.DroppedEvents(); drops > 0 {
			checks["event_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["events"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
