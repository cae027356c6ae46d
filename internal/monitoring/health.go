package monitoring

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type HealthCheck struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	LastRun time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

// HealthChecker runs every registered check on each probe.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	timeout time.Duration
	started time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		timeout: 5 * time.Second,
		started: time.Now(),
	}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Run(ctx context.Context) (map[string]HealthCheck, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]HealthCheckFunc, len(names))
	for i, name := range names {
		checks[i] = h.checks[name]
	}
	h.mu.RUnlock()

	results := make(map[string]HealthCheck, len(names))
	healthy := true

	for i, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := checks[i](checkCtx)
		cancel()

		result := HealthCheck{Name: name, Status: statusHealthy, LastRun: time.Now().UTC()}
		if err != nil {
			result.Status = statusUnhealthy
			result.Message = err.Error()
			healthy = false
		}
		results[name] = result
	}

	return results, healthy
}

func (h *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, healthy := h.Run(c.Request.Context())

		overall, status := statusHealthy, http.StatusOK
		if !healthy {
			overall, status = statusUnhealthy, http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    overall,
			"timestamp": time.Now().UTC(),
			"checks":    checks,
			"uptime":    time.Since(h.started).Round(time.Second).String(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, healthy := h.Run(c.Request.Context()); !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not ready",
				"timestamp": time.Now().UTC(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
		})
	}
}

func (h *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(h.started).Round(time.Second).String(),
		})
	}
}
