package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"infopalbot/internal/queue"
	"infopalbot/internal/scheduler"
)

func testServer() *Server {
	q := queue.New(1)
	sched := scheduler.New(nil, scheduler.Clients{}, q)
	return New("0", nil, nil, sched, q)
}

func TestHealthReportsDegradedWithoutBackends(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Database != "down" {
		t.Errorf("database = %q, want down", resp.Database)
	}
	if resp.Redis != "disabled" {
		t.Errorf("redis = %q, want disabled", resp.Redis)
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
