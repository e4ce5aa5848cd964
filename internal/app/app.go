// Package app builds the explicit AppContext both binaries run on: config,
// logger, telemetry, metrics, infrastructure clients, the service registry
// and the health checker. It is built once by main and torn down with it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/clients"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/metrics"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/registry"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/runtime"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/telemetry"
)

// Context holds every dependency shared by a binary's subcommands. Clients
// are nil when the configuration does not use them.
type Context struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Checker  *health.Checker
	Registry registry.Registry

	Telemetry *telemetry.Provider
	Postgres  *clients.PostgresClient
	Redis     *clients.RedisClient
	NATS      *clients.NATSClient

	closers []closer
}

type closer struct {
	name string
	fn   runtime.Closer
}

// New wires a Context from cfg. Connections open lazily, except that a NATS
// registry needs its KV bucket up front.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Context, error) {
	a := &Context{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(strings.ReplaceAll(cfg.Service, "-", "_")),
		Checker: health.NewChecker(),
	}

	// OTEL is best-effort: a missing collector must never block startup.
	if cfg.Telemetry.OTLPEndpoint == "" {
		logger.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx, telemetry.Options{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Insecure:    cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			logger.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			a.Telemetry = tp
			a.onClose("telemetry", tp.Shutdown)
		}
	}

	if cfg.Service == config.UserServer && cfg.Users.Directory == config.DirectoryPostgres {
		a.Postgres = clients.NewPostgresClient(cfg.Postgres, clients.NewCircuitBreaker("postgres"))
		a.Checker.Add("postgres", a.Postgres)
		a.onClose("postgres", func(context.Context) error { return a.Postgres.Close() })
	}

	if cfg.Registry.Backend == config.RegistryRedis || a.UsesUserCache() {
		a.Redis = clients.NewRedisClient(cfg.Redis, clients.NewCircuitBreaker("redis"))
		a.Checker.Add("redis", a.Redis)
		a.onClose("redis", func(context.Context) error { return a.Redis.Close() })
	}

	if cfg.Registry.Backend == config.RegistryNATS {
		a.NATS = clients.NewNATSClient(cfg.NATS, clients.NewCircuitBreaker("nats"))
		a.Checker.Add("nats", a.NATS)
		a.onClose("nats", func(context.Context) error { return a.NATS.Close() })
	}

	reg, err := a.buildRegistry(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Registry = reg

	return a, nil
}

// UsesUserCache reports whether user lookups go through the Redis cache.
func (a *Context) UsesUserCache() bool {
	return a.Config.Service == config.UserServer && a.Config.Users.CacheTTL > 0
}

func (a *Context) buildRegistry(ctx context.Context) (registry.Registry, error) {
	cfg := a.Config.Registry
	switch cfg.Backend {
	case config.RegistryRedis:
		return registry.NewRedisRegistry(a.Redis.Client(), a.Redis.Breaker(), cfg.TTL), nil
	case config.RegistryNATS:
		if err := a.NATS.ProvisionBucket(ctx, cfg.TTL); err != nil {
			return nil, fmt.Errorf("provisioning registry bucket: %w", err)
		}
		kv, err := a.NATS.Bucket(ctx)
		if err != nil {
			return nil, fmt.Errorf("opening registry bucket: %w", err)
		}
		return registry.NewNATSRegistry(kv, clients.NewCircuitBreaker("nats-registry")), nil
	default:
		return registry.NewStaticRegistry(cfg.Static), nil
	}
}

func (a *Context) onClose(name string, fn runtime.Closer) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Heartbeat returns the task announcing this process in the registry, or
// nil for the static backend, where addresses come from config.
func (a *Context) Heartbeat() runtime.Task {
	if a.Config.Registry.Backend == config.RegistryStatic {
		return nil
	}
	inst := registry.NewInstance(a.Config.Service, a.Config.Registry.AdvertiseAddr)
	return registry.NewHeartbeat(a.Registry, inst, a.Config.Registry.Heartbeat, a.Logger).Run
}

// NewRuntime builds the single Runtime for this process, serving handler
// and owning the heartbeat and every closer registered so far.
func (a *Context) NewRuntime(handler http.Handler) *runtime.Runtime {
	srv := a.Config.Server
	rt := runtime.New(runtime.Options{
		Addr:            fmt.Sprintf(":%d", srv.Port),
		Handler:         handler,
		ReadTimeout:     srv.ReadTimeout,
		WriteTimeout:    srv.WriteTimeout,
		ShutdownTimeout: srv.ShutdownTimeout,
		Logger:          a.Logger,
	})
	for _, c := range a.closers {
		rt.AddCloser(c.name, c.fn)
	}
	a.closers = nil

	if hb := a.Heartbeat(); hb != nil {
		rt.AddTask("registry heartbeat", hb)
	}
	return rt
}

// Close releases everything New opened, in reverse order. Used by commands
// that exit without starting a Runtime.
func (a *Context) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Warn("close failed", "resource", c.name, "err", err)
		}
	}
	a.closers = nil
}
