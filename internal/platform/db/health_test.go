package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, h echo.HandlerFunc) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	stats := func() *PoolStats { return &PoolStats{TotalConns: 3, MaxConns: 20} }

	code, body := runHealth(t, HealthHandler(stats, Check{"postgres", ok}, Check{"redis", ok}))

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	pool, _ := body["pool"].(map[string]interface{})
	if pool["max_conns"] != float64(20) {
		t.Errorf("expected pool stats in body, got %v", body["pool"])
	}
}

func TestHealthHandler_FailingCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	code, body := runHealth(t, HealthHandler(nil, Check{"postgres", ok}, Check{"redis", down}))

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	checks, _ := body["checks"].(map[string]interface{})
	if checks["redis"] != "connection refused" {
		t.Errorf("expected redis failure detail, got %v", checks)
	}
	if checks["postgres"] != "ok" {
		t.Errorf("expected postgres ok, got %v", checks)
	}
	if _, ok := body["pool"]; ok {
		t.Error("expected no pool stats when stats func is nil")
	}
}
