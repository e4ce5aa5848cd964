package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/api"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/app"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/order"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/userapi"
)

// orderApp is order-server's AppContext.
type orderApp struct {
	*app.Context
	users  *userapi.Client
	router *api.Router
}

func buildOrderApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*orderApp, error) {
	base, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	users := userapi.NewClient(base.Registry, userapi.ClientOptions{
		Timeout:        cfg.Client.Timeout,
		MaxRetries:     cfg.Client.MaxRetries,
		InitialBackoff: cfg.Client.InitialBackoff,
		Metrics:        base.Metrics,
		Logger:         logger,
	})

	// Deep health also reports whether user-server can be discovered.
	base.Checker.Add(userapi.ServerName, health.ProberFunc(func(ctx context.Context) health.ProbeResult {
		start := time.Now()
		res := health.ProbeResult{Name: userapi.ServerName, OK: true}
		if _, err := base.Registry.Resolve(ctx, userapi.ServerName); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		res.LatencyMs = time.Since(start).Milliseconds()
		return res
	}))

	handler := order.NewHandler(users, logger)
	router := api.NewRouter(api.Options{
		ServiceName:    config.OrderServer,
		Logger:         logger,
		Metrics:        base.Metrics,
		Checker:        base.Checker,
		RateLimit:      cfg.RateLimit,
		TrustedProxies: cfg.Server.TrustedProxies,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Registrars:     []api.Registrar{handler.Register},
	})

	return &orderApp{Context: base, users: users, router: router}, nil
}
