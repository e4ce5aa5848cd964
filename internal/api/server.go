// Package api builds the gin engine shared by user-server and order-server:
// middleware chain, operational endpoints and caller-supplied service routes.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/bng-src/spring-cloud-netflix-demo/docs" // register generated Swagger spec
	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/metrics"
)

// Registrar mounts service routes on the rate-limited route group.
type Registrar func(r gin.IRoutes)

// Options configures NewRouter. Zero values disable the optional parts.
type Options struct {
	ServiceName string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Checker     *health.Checker

	// Orchestrator drives /ready and, when set, POST /api/v1/bootstrap.
	Orchestrator     orchestratorService
	BootstrapTimeout time.Duration

	RateLimit   config.RateLimitConfig
	CORSOrigins []string
	// TrustedProxies are the CIDRs allowed to set X-Forwarded-For. Empty
	// keys the client IP, and so the rate limiter, on the remote address.
	TrustedProxies []string
	Swagger     bool
	Registrars  []Registrar
}

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router. Middleware order:
//  1. Recovery
//  2. Tracing
//  3. Metrics
//  4. RequestLogger
//  5. RateLimit (service routes only)
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BootstrapTimeout <= 0 {
		opts.BootstrapTimeout = 2 * time.Minute
	}

	engine := gin.New()
	// Match on the escaped path so a uid containing "/" stays one segment.
	engine.UseRawPath = true
	engine.UnescapePathValues = true
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, ignoring forwarded headers",
			"proxies", opts.TrustedProxies, "error", err)
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(Recovery(logger))
	engine.Use(Tracing(opts.ServiceName))
	if opts.Metrics != nil {
		engine.Use(Metrics(opts.Metrics))
	}
	engine.Use(RequestLogger(logger))
	if len(opts.CORSOrigins) > 0 {
		engine.Use(CORS(opts.CORSOrigins))
	}

	h := &Handler{
		orchestrator:     opts.Orchestrator,
		checker:          opts.Checker,
		bootstrapTimeout: opts.BootstrapTimeout,
		logger:           logger,
	}

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	if opts.Orchestrator != nil {
		engine.Group("/api/v1").POST("/bootstrap", h.Bootstrap)
	}

	if opts.Swagger {
		engine.GET("/api-docs", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/api-docs/index.html")
		})
		engine.GET("/api-docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := engine.Group("")
	if opts.RateLimit.Enabled {
		limiter := NewIPLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst, 0)
		svc.Use(RateLimit(limiter, opts.Metrics))
	}
	for _, register := range opts.Registrars {
		register(svc)
	}

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
