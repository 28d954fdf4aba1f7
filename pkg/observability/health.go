package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) (DependencyStatus, error)

type namedCheck struct {
	name string
	// critical dependencies make the service unhealthy; the rest degrade it
	critical bool
	fn       CheckFunc
}

// HealthChecker aggregates dependency checks for the readiness probe
type HealthChecker struct {
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks []namedCheck
	now    func() time.Time
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a health checker reporting version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version: version,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// AddCheck registers a dependency check
func (h *HealthChecker) AddCheck(name string, critical bool, fn CheckFunc) *HealthChecker {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, critical: critical, fn: fn})
	return h
}

// Liveness reports that the process is serving requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: h.now(), Version: h.version})
}

// Readiness runs every check and answers 503 when a critical one fails
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

// Check runs all dependency checks concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]DependencyStatus, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check namedCheck) {
			defer wg.Done()
			start := h.now()
			dep, err := check.fn(ctx)
			dep.LatencyMS = h.now().Sub(start).Milliseconds()
			dep.Timestamp = start
			if err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()
			} else if dep.Status == "" {
				dep.Status = StatusHealthy
			}
			results[i] = dep
		}(i, check)
	}
	wg.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    h.now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(checks)),
	}
	for i, check := range checks {
		dep := results[i]
		status.Dependencies[check.name] = dep
		switch {
		case dep.Status == StatusUnhealthy && check.critical:
			status.Status = StatusUnhealthy
		case dep.Status != StatusHealthy && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

// Names returns the registered check names in order
func (h *HealthChecker) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for _, check := range h.checks {
		names = append(names, check.name)
	}
	sort.Strings(names)
	return names
}

// DatabaseCheck pings the database and reports pool exhaustion as degraded
func DatabaseCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) (DependencyStatus, error) {
		if err := db.PingContext(ctx); err != nil {
			return DependencyStatus{}, err
		}
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return DependencyStatus{}, err
		}
		stats := db.Stats()
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return DependencyStatus{Status: StatusDegraded, Message: "connection pool exhausted"}, nil
		}
		return DependencyStatus{}, nil
	}
}

// RedisCheck pings a Redis server
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) (DependencyStatus, error) {
		return DependencyStatus{}, client.Ping(ctx).Err()
	}
}

// RegisterHealthRoutes registers /healthz and /readyz
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
