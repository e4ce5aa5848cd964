// Package orchestrator provisions the infrastructure a service depends on
// before it starts taking traffic: the users table, the registry KV bucket
// and a Redis reachability check.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/user"
)

// ErrBootstrapInProgress is returned when RunBootstrap is called while a
// bootstrap is already running.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// Phase is one named provisioning step.
type Phase struct {
	Name string
	Run  func(ctx context.Context) error
}

// Seeder is satisfied by *user.PostgresDirectory.
type Seeder interface {
	Seed(ctx context.Context, users []user.Info) error
}

// BucketProvisioner is satisfied by *clients.NATSClient.
type BucketProvisioner interface {
	ProvisionBucket(ctx context.Context, ttl time.Duration) error
}

// PostgresPhase creates the users table and upserts users.
func PostgresPhase(s Seeder, users []user.Info) Phase {
	return Phase{Name: "postgres", Run: func(ctx context.Context) error {
		return s.Seed(ctx, users)
	}}
}

// NATSPhase creates or updates the registry KV bucket with ttl.
func NATSPhase(p BucketProvisioner, ttl time.Duration) Phase {
	return Phase{Name: "nats", Run: func(ctx context.Context) error {
		return p.ProvisionBucket(ctx, ttl)
	}}
}

// ProbePhase turns a health probe into a phase, e.g. for Redis.
func ProbePhase(name string, p health.Prober) Phase {
	return Phase{Name: name, Run: func(ctx context.Context) error {
		res := p.Probe(ctx)
		if !res.OK {
			return errors.New(res.Error)
		}
		return nil
	}}
}

// Orchestrator runs bootstrap phases and remembers the last outcome.
type Orchestrator struct {
	phases []Phase
	logger *slog.Logger

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator. With no phases every run succeeds.
func New(logger *slog.Logger, phases ...Phase) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{phases: phases, logger: logger}
}

// PhaseNames lists the configured phases in sorted order.
func (o *Orchestrator) PhaseNames() []string {
	names := make([]string, 0, len(o.phases))
	for _, p := range o.phases {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// RunBootstrap runs all phases concurrently. A phase failure is recorded in
// the result but does not cancel the other phases. Returns
// ErrBootstrapInProgress if a bootstrap is already running.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	return o.run(ctx), nil
}

// StartBootstrap claims the run before returning and then executes it in
// the background, bounded by timeout when positive. The channel receives
// the result once the run has finished. Returns ErrBootstrapInProgress if
// a bootstrap is already running.
func (o *Orchestrator) StartBootstrap(ctx context.Context, timeout time.Duration) (<-chan *BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}

	done := make(chan *BootstrapResult, 1)
	go func() {
		defer close(done)
		runCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		result := o.run(runCtx)
		o.bootstrapInProgress.Store(false)
		done <- result
	}()
	return done, nil
}

func (o *Orchestrator) run(ctx context.Context) *BootstrapResult {
	result := &BootstrapResult{
		Status: StatusInProgress,
		Phases: make(map[string]PhaseResult, len(o.phases)),
	}

	ctx, span := otel.Tracer("orchestrator").Start(ctx, "bootstrap")
	defer span.End()

	o.logger.InfoContext(ctx, "bootstrap started", "phases", o.PhaseNames())

	// No derived context: one failing phase must not cancel its siblings.
	var g errgroup.Group
	for _, p := range o.phases {
		g.Go(func() error {
			phase := toPhase(p.Name, p.Run(ctx))
			o.logPhase(ctx, phase)
			result.Lock()
			result.Phases[p.Name] = phase
			result.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Status = StatusOK
	for _, phase := range result.Phases {
		if phase.Status == StatusError {
			result.Status = StatusError
			break
		}
	}

	span.SetAttributes(attribute.String("bootstrap.status", result.Status))
	if result.Status == StatusError {
		span.SetStatus(codes.Error, "one or more bootstrap phases failed")
		o.logger.WarnContext(ctx, "bootstrap completed with errors", "failed", result.Failed())
	} else {
		span.SetStatus(codes.Ok, "")
		o.logger.InfoContext(ctx, "bootstrap completed", "status", result.Status)
	}

	o.resultMu.Lock()
	o.lastResult = result
	o.resultMu.Unlock()

	return result
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

func (o *Orchestrator) logPhase(ctx context.Context, p PhaseResult) {
	if p.Status == StatusOK {
		o.logger.InfoContext(ctx, "bootstrap phase ok", "phase", p.Name)
		return
	}
	o.logger.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "error", p.Error)
}

func toPhase(name string, err error) PhaseResult {
	if err == nil {
		return PhaseResult{Name: name, Status: StatusOK}
	}
	return PhaseResult{Name: name, Status: StatusError, Error: err.Error()}
}
