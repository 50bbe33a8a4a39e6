package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_ReportsDependencies(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", func() error { return nil })
	handler.Register("kafka", func() error { return nil })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.Status != StatusUp {
		t.Fatalf("expected overall status up, got %s", report.Status)
	}
	if report.Version != "v1.2.0" {
		t.Fatalf("unexpected version: %s", report.Version)
	}
	if len(report.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(report.Dependencies))
	}
	if report.Dependencies["postgres"].Status != StatusUp {
		t.Fatalf("postgres dependency should be up: %+v", report.Dependencies["postgres"])
	}
}

func TestHandler_FailedDependencyTurnsReportDown(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", func() error { return nil })
	handler.Register("kafka", func() error { return errors.New("broker unreachable") })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.Status != StatusDown {
		t.Fatalf("expected overall status down, got %s", report.Status)
	}
	if report.Dependencies["kafka"].Error != "broker unreachable" {
		t.Fatalf("expected kafka error in report: %+v", report.Dependencies["kafka"])
	}
	if report.Dependencies["postgres"].Status != StatusUp {
		t.Fatalf("healthy dependency must stay up: %+v", report.Dependencies["postgres"])
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", func() error { return nil })

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestReadinessHandler_FailsClosed(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", func() error { return errors.New("connection refused") })

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
