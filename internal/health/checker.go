// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StorePinger verifies the persistence layer is reachable.
type StorePinger interface {
	Ping() error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks on dependencies.
type Checker struct {
	store     StorePinger
	ytDlpPath string
	timeout   time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a new health checker. ytDlpPath is the resolved tool
// location; a missing tool degrades the service but does not take it down,
// downloads just fail with an actionable error.
func NewChecker(store StorePinger, ytDlpPath string) *Checker {
	return &Checker{
		store:     store,
		ytDlpPath: ytDlpPath,
		timeout:   5 * time.Second,
	}
}

// Liveness returns true if the service is alive.
// This should be a lightweight check that doesn't depend on external services.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks if the service is ready to accept work: the store must
// answer, the downloader binary should exist.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	// Return unhealthy immediately if shutting down
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	// Use cached result if recent
	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult)
	overallStatus := StatusHealthy

	storeCheck := c.checkStore()
	checks["store"] = storeCheck
	if storeCheck.Status != StatusHealthy {
		overallStatus = StatusUnhealthy
	}

	toolCheck := c.checkYtDlp()
	checks["yt-dlp"] = toolCheck
	if toolCheck.Status == StatusDegraded && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	response := &Response{
		Status: overallStatus,
		Checks: checks,
	}

	// Cache the result
	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkStore() CheckResult {
	if c.store == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "store not configured",
		}
	}
	if err := c.store.Ping(); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	return CheckResult{
		Status: StatusHealthy,
	}
}

// checkYtDlp only stats the binary. A bare name means PATH resolution was
// deferred to spawn time, which is fine.
func (c *Checker) checkYtDlp() CheckResult {
	if c.ytDlpPath == "" {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "yt-dlp not resolved",
		}
	}
	if filepath.Base(c.ytDlpPath) == c.ytDlpPath {
		return CheckResult{Status: StatusHealthy}
	}
	if _, err := os.Stat(c.ytDlpPath); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "yt-dlp binary missing: " + err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy reports whether the service can accept work. Degraded still
// counts; only unhealthy takes the daemon out of rotation.
func (r *Response) IsHealthy() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown marks the service as shutting down.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil // Clear cache to ensure immediate effect
}
