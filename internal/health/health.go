// Package health aggregates liveness checks over the service's backing
// stores so the readiness endpoint reflects real dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Checker runs named dependency checks with a shared timeout.
type Checker struct {
	mu      sync.Mutex
	checks  map[string]Check
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{checks: make(map[string]Check), timeout: timeout}
}

// Register adds a named check. Registering the same name replaces it.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Result is the outcome of one dependency check.
type Result struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Run probes every dependency and reports per-check results plus overall
// health.
func (c *Checker) Run(ctx context.Context) (map[string]Result, bool) {
	c.mu.Lock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make(map[string]Result, len(checks))
	healthy := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = Result{Status: "down", Error: err.Error()}
			healthy = false
			continue
		}
		results[name] = Result{Status: "up"}
	}
	return results, healthy
}
