package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsMiddleware_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/api/orders/1", "/api/orders/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rec.Code)
		}
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, family := range families {
		if family.GetName() != "ops_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			route := ""
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" {
					route = label.GetValue()
				}
			}
			if route == "/api/orders/{id}" {
				found = true
				if metric.GetCounter().GetValue() < 2 {
					t.Fatalf("expected at least 2 requests for route, got %f", metric.GetCounter().GetValue())
				}
			}
			if route != "" && route != "unmatched" && route[0] != '/' {
				t.Fatalf("unexpected route label: %q", route)
			}
		}
	}
	if !found {
		t.Fatal("expected metric series for /api/orders/{id}")
	}
}
