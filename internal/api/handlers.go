package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/orchestrator"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers.
type orchestratorService interface {
	StartBootstrap(ctx context.Context, timeout time.Duration) (<-chan *orchestrator.BootstrapResult, error)
	IsReady() bool
}

// Handler holds the dependencies shared across the operational handlers.
type Handler struct {
	orchestrator     orchestratorService
	checker          *health.Checker
	bootstrapTimeout time.Duration
	logger           *slog.Logger
}

// Bootstrap handles POST /api/v1/bootstrap.
// It returns 202 when a new run is started, or 409 if one is already in
// progress. The run itself happens in the background.
func (h *Handler) Bootstrap(c *gin.Context) {
	// The run outlives the request but keeps its trace.
	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := h.orchestrator.StartBootstrap(ctx, h.bootstrapTimeout); err != nil {
		if errors.Is(err, orchestrator.ErrBootstrapInProgress) {
			c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
			return
		}
		h.logger.ErrorContext(ctx, "bootstrap not started", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Health handles GET /health. Liveness only; always 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep. It returns 200 only when every
// registered dependency probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := map[string]health.ProbeResult{}
	if h.checker != nil {
		probes = h.checker.Run(c.Request.Context())
	}

	status := "healthy"
	code := http.StatusOK
	if !health.AllOK(probes) {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready: 200 after a successful bootstrap, 503 otherwise.
// Without an orchestrator the service is always ready.
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator == nil || h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
