package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/api"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/app"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/orchestrator"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/user"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/userapi"
)

// userApp is user-server's AppContext.
type userApp struct {
	*app.Context
	service      *user.Service
	orchestrator *orchestrator.Orchestrator
	router       *api.Router
}

// buildUserApp wires user-server from cfg:
//  1. Shared context (telemetry, clients, registry)
//  2. The user directory, cached when users.cache_ttl is set
//  3. Bootstrap phases for whatever infrastructure is in use
//  4. The HTTP router with the contract's route table
func buildUserApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*userApp, error) {
	base, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		dir    user.Directory
		phases []orchestrator.Phase
	)
	seed := user.ParseSeed(cfg.Users.Seed)
	if base.Postgres != nil {
		pg := user.NewPostgresDirectory(base.Postgres, base.Postgres.Breaker())
		dir = pg
		phases = append(phases, orchestrator.PostgresPhase(pg, seed))
	} else {
		dir = user.NewMemoryDirectory(seed...)
	}
	if base.UsesUserCache() {
		dir = user.NewCachedDirectory(dir, base.Redis.Client(), cfg.Users.CacheTTL, logger)
	}
	if base.NATS != nil {
		phases = append(phases, orchestrator.NATSPhase(base.NATS, cfg.Registry.TTL))
	}
	if base.Redis != nil {
		phases = append(phases, orchestrator.ProbePhase("redis", base.Redis))
	}

	a := &userApp{
		Context:      base,
		service:      user.NewService(dir, base.Metrics, logger),
		orchestrator: orchestrator.New(logger, phases...),
	}

	a.router = api.NewRouter(api.Options{
		ServiceName:      config.UserServer,
		Logger:           logger,
		Metrics:          base.Metrics,
		Checker:          base.Checker,
		Orchestrator:     a.orchestrator,
		BootstrapTimeout: cfg.Bootstrap.Timeout,
		RateLimit:        cfg.RateLimit,
		TrustedProxies:   cfg.Server.TrustedProxies,
		CORSOrigins:      cfg.Server.CORSOrigins,
		Swagger:          true,
		Registrars: []api.Registrar{
			func(r gin.IRoutes) { userapi.Register(r, a.service) },
		},
	})

	return a, nil
}

// bootstrapOnce runs the bootstrap phases once at startup. Failures leave
// /ready at 503 but do not stop the server; POST /api/v1/bootstrap retries.
func (a *userApp) bootstrapOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.Config.Bootstrap.Timeout)
	defer cancel()

	if _, err := a.orchestrator.RunBootstrap(ctx); err != nil && !errors.Is(err, orchestrator.ErrBootstrapInProgress) {
		return err
	}
	return nil
}
