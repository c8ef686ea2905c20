// Package handlers provides shared HTTP middleware and health check plumbing.
package handlers

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker aggregates named checks into one service-level verdict.
type HealthChecker interface {
	// Check runs every registered check and aggregates the results.
	Check(ctx context.Context) HealthStatus

	// AddCheck registers a named check.
	AddCheck(name string, check HealthCheckFunc)

	// RemoveCheck drops a named check.
	RemoveCheck(name string)
}

// HealthCheckFunc probes one dependency. A nil return means healthy.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated verdict served on the health endpoints.
type HealthStatus struct {
	// Healthy is the overall verdict.
	Healthy bool `json:"healthy"`

	// Ready mirrors Healthy; a service with a failing dependency is
	// not ready for traffic either.
	Ready bool `json:"ready"`

	// Message names the failing checks, or confirms that all passed.
	Message string `json:"message,omitempty"`

	// Checks holds the per-dependency results.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Uptime is how long the process has been running.
	Uptime string `json:"uptime,omitempty"`

	// Timestamp is when the aggregation ran.
	Timestamp time.Time `json:"timestamp"`

	// Version is the service version string.
	Version string `json:"version,omitempty"`
}

// CheckResult is the outcome of a single dependency probe.
type CheckResult struct {
	Healthy bool `json:"healthy"`

	// Message carries the probe error, or "OK".
	Message string `json:"message,omitempty"`

	// Duration is how long the probe took.
	Duration string `json:"duration,omitempty"`

	LastChecked time.Time `json:"last_checked,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// CompositeHealthChecker runs its registered checks in parallel, each under
// its own timeout, and fails the aggregate when any one of them fails.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker returns an empty checker with a 5s per-check
// timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout changes the per-check timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// AddCheck registers a named check, replacing any previous one.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RemoveCheck drops a named check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check probes every dependency in parallel and aggregates the verdict.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	if len(checks) == 0 {
		status.Message = "no health checks registered"
		return status
	}

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheckFunc) {
			defer wg.Done()
			result := c.runCheck(ctx, check)

			resultsMu.Lock()
			status.Checks[name] = result
			resultsMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var failing []string
	for name, result := range status.Checks {
		if !result.Healthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		status.Healthy = false
		status.Ready = false
		status.Message = "failing checks: " + strings.Join(failing, ", ")
	} else {
		status.Message = "all checks passed"
	}

	return status
}

func (c *CompositeHealthChecker) runCheck(ctx context.Context, check HealthCheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check(checkCtx)

	result := CheckResult{
		Healthy:     err == nil,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDEFINED HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// DatabaseChecker is anything that can ping the primary store.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// NewDatabaseCheck probes the primary store.
func NewDatabaseCheck(db DatabaseChecker) HealthCheckFunc {
	return func(ctx context.Context) error {
		return db.Ping(ctx)
	}
}

// CacheChecker is anything that can ping the cache.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// NewCacheCheck probes the cache.
func NewCacheCheck(cache CacheChecker) HealthCheckFunc {
	return func(ctx context.Context) error {
		return cache.Ping(ctx)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOOP IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// NoopHealthChecker reports healthy no matter what. It stands in when no
// real checker is wired, in tests and in bare configurations.
type NoopHealthChecker struct {
	startTime time.Time
}

// NewNoopHealthChecker creates a noop checker.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{startTime: time.Now()}
}

// Check reports healthy unconditionally.
func (n *NoopHealthChecker) Check(ctx context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// AddCheck does nothing.
func (n *NoopHealthChecker) AddCheck(name string, check HealthCheckFunc) {}

// RemoveCheck does nothing.
func (n *NoopHealthChecker) RemoveCheck(name string) {}
