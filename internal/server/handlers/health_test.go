package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ok", stubChecker{err: nil})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Fatalf("expected healthy status, got %s", resp.Status)
	}

	if resp.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", resp.Version)
	}

	if resp.Checks["ok"] != "healthy" {
		t.Fatalf("expected ok check to be healthy, got %s", resp.Checks["ok"])
	}
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{err: errors.New("disk gone")})
	manager.RegisterChecker("queue", stubChecker{err: nil})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Message string                 `json:"message"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Error.Code != "UNHEALTHY" {
		t.Fatalf("expected UNHEALTHY error code, got %s", resp.Error.Code)
	}

	if resp.Error.Details == nil {
		t.Fatalf("expected error details to name the failing check")
	}
	if msg, ok := resp.Error.Details["store"].(string); !ok || msg != "disk gone" {
		t.Fatalf("expected store failure detail, got %v", resp.Error.Details["store"])
	}
	if _, ok := resp.Error.Details["queue"]; ok {
		t.Fatalf("healthy checks should not appear in error details")
	}
}

func TestCheckerFunc(t *testing.T) {
	called := false
	c := CheckerFunc(func(ctx context.Context) error {
		called = true
		return nil
	})
	if err := c.CheckHealth(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("checker func not invoked")
	}
}

func TestRegisterCheckerReplaces(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("db", stubChecker{err: errors.New("down")})
	manager.RegisterChecker("db", stubChecker{err: nil})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected replaced checker to report healthy, got %d", rec.Code)
	}
}

func TestInitHealthManager(t *testing.T) {
	// Save original
	original := DefaultHealthManager()
	defer func() {
		healthMu.Lock()
		healthManager = original
		healthMu.Unlock()
	}()

	InitHealthManager("test-version")

	manager := DefaultHealthManager()
	if manager == nil {
		t.Fatal("expected package manager to be initialized")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, req)

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != "test-version" {
		t.Fatalf("expected version test-version, got %s", resp.Version)
	}
}

func TestPackageLevelHandlers(t *testing.T) {
	// Save original
	original := DefaultHealthManager()
	defer func() {
		healthMu.Lock()
		healthManager = original
		healthMu.Unlock()
	}()

	InitHealthManager("test-version")

	tests := []struct {
		name    string
		path    string
		handler http.HandlerFunc
	}{
		{"Health", "/health", Health},
		{"Live", "/health/live", Live},
		{"Ready", "/health/ready", Ready},
		{"Startup", "/health/startup", Startup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			tt.handler(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
		})
	}
}
