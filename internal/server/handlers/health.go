package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/webhaul/webhaul/internal/errors"
)

// Checker is a named dependency health probe.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a healthy /health response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager aggregates registered checkers into the health endpoints.
type HealthManager struct {
	mu       sync.Mutex
	version  string
	checkers map[string]Checker
	started  time.Time
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]Checker),
		started:  time.Now().UTC(),
	}
}

// RegisterChecker adds (or replaces) a named checker.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// HealthHandler reports aggregate health: 200 when every checker passes,
// 503 with the standard error envelope otherwise.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	m.mu.Lock()
	version := m.version
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.Unlock()

	checks := make(map[string]string, len(checkers))
	details := make(map[string]any)
	healthy := true
	for name, c := range checkers {
		if err := c.CheckHealth(ctx); err != nil {
			checks[name] = "unhealthy"
			details[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	if !healthy {
		apperrors.WriteError(w, r.Header.Get("X-Request-ID"),
			"UNHEALTHY", "one or more health checks failed",
			http.StatusServiceUnavailable, details)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  "healthy",
		Version: version,
		Checks:  checks,
	})
}

// LiveHandler is the liveness probe: the process is up.
func (m *HealthManager) LiveHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, "alive")
}

// ReadyHandler is the readiness probe. It runs the same checkers as
// HealthHandler.
func (m *HealthManager) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports that startup completed.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, "started")
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Package-level manager so the server can wire routes before the rest of
// the app is constructed.
var (
	healthMu      sync.Mutex
	healthManager = NewHealthManager("dev")
)

// InitHealthManager replaces the package-level manager's version.
func InitHealthManager(version string) {
	healthMu.Lock()
	defer healthMu.Unlock()
	healthManager = NewHealthManager(version)
}

// DefaultHealthManager returns the package-level manager for checker
// registration.
func DefaultHealthManager() *HealthManager {
	healthMu.Lock()
	defer healthMu.Unlock()
	return healthManager
}

// Health serves /health via the package-level manager.
func Health(w http.ResponseWriter, r *http.Request) {
	DefaultHealthManager().HealthHandler(w, r)
}

// Live serves /health/live.
func Live(w http.ResponseWriter, r *http.Request) {
	DefaultHealthManager().LiveHandler(w, r)
}

// Ready serves /health/ready.
func Ready(w http.ResponseWriter, r *http.Request) {
	DefaultHealthManager().ReadyHandler(w, r)
}

// Startup serves /health/startup.
func Startup(w http.ResponseWriter, r *http.Request) {
	DefaultHealthManager().StartupHandler(w, r)
}
