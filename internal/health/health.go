// Package health runs dependency probes for the /health/deep endpoint and
// the startup orchestrator.
package health

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProbeResult is the outcome of probing one dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Prober is satisfied by every client in internal/clients and by the
// registry backends.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) ProbeResult

func (f ProberFunc) Probe(ctx context.Context) ProbeResult { return f(ctx) }

// Checker probes a fixed set of named dependencies concurrently.
type Checker struct {
	probers map[string]Prober
}

// NewChecker returns an empty Checker.
func NewChecker() *Checker {
	return &Checker{probers: make(map[string]Prober)}
}

// Add registers p under name. A later Add with the same name replaces it.
func (c *Checker) Add(name string, p Prober) {
	c.probers[name] = p
}

// Names lists the registered dependency names in sorted order.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.probers))
	for name := range c.probers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run probes every dependency concurrently and returns the results keyed by
// dependency name.
func (c *Checker) Run(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(c.probers))
	var mu sync.Mutex
	var g errgroup.Group

	for name, p := range c.probers {
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[name] = probe
			mu.Unlock()
			return nil
		})
	}

	// Probers report failure in ProbeResult; Wait never returns an error.
	_ = g.Wait()
	return results
}

// AllOK reports whether every result is OK. An empty set is healthy.
func AllOK(results map[string]ProbeResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}
