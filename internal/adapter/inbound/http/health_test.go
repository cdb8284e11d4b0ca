package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeKeys struct{ rate, concurrent int }

func (f fakeKeys) TrackedRateLimitKeys() int { return f.rate }
func (f fakeKeys) ActiveConcurrentKeys() int { return f.concurrent }

type fakeDrops int64

func (f fakeDrops) DroppedEvents() int64 { return int64(f) }

func TestHealthChecker_Healthy(t *testing.T) {
	t.Parallel()

	router := NewRouter(nil, discardLogger())
	_ = router.Register("echo", echo)
	hc := NewHealthChecker(router, fakeKeys{rate: 2, concurrent: 1}, fakeDrops(0), "test-version")

	health := hc.Check()
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["router"] != "ok: 1 methods" {
		t.Errorf("router check = %q", health.Checks["router"])
	}
	if health.Checks["rate_limiter"] != "ok: 2 tracked keys" {
		t.Errorf("rate_limiter check = %q", health.Checks["rate_limiter"])
	}
	if _, ok := health.Checks["event_drops"]; ok {
		t.Error("event_drops should be absent without drops")
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	t.Parallel()

	health := NewHealthChecker(nil, nil, nil, "").Check()
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	for _, name := range []string{"router", "rate_limiter", "events"} {
		if health.Checks[name] != "not configured" {
			t.Errorf("%s check = %q, want not configured", name, health.Checks[name])
		}
	}
}

func TestHealthChecker_ClosedRouterIsUnhealthy(t *testing.T) {
	t.Parallel()

	router := NewRouter(nil, discardLogger())
	_ = router.Close()
	hc := NewHealthChecker(router, nil, fakeDrops(5), "")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "unhealthy" || health.Checks["event_drops"] != "5 dropped" {
		t.Errorf("health = %+v", health)
	}
}
