package registry

import (
	"context"
	"log/slog"
	"time"
)

// Heartbeat keeps one instance registered while the process runs.
type Heartbeat struct {
	registrar Registrar
	instance  Instance
	interval  time.Duration
	logger    *slog.Logger
}

// NewHeartbeat returns a Heartbeat that re-registers inst every interval.
func NewHeartbeat(r Registrar, inst Instance, interval time.Duration, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Heartbeat{registrar: r, instance: inst, interval: interval, logger: logger}
}

// Instance returns the instance this heartbeat publishes.
func (h *Heartbeat) Instance() Instance {
	return h.instance
}

// Run registers immediately and returns that error if it fails, so a server
// that cannot announce itself fails its startup. Afterwards it re-registers
// every interval, logging failures, until ctx is done, then deregisters
// using a fresh short-lived context.
func (h *Heartbeat) Run(ctx context.Context) error {
	if err := h.registrar.Register(ctx, h.instance); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "service registered",
		"service", h.instance.Service, "id", h.instance.ID, "addr", h.instance.Addr)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.registrar.Deregister(deregCtx, h.instance); err != nil {
				h.logger.Warn("deregister failed", "service", h.instance.Service, "err", err)
			} else {
				h.logger.Info("service deregistered", "service", h.instance.Service, "id", h.instance.ID)
			}
			return nil
		case <-ticker.C:
			if err := h.registrar.Register(ctx, h.instance); err != nil {
				h.logger.WarnContext(ctx, "heartbeat failed", "service", h.instance.Service, "err", err)
			}
		}
	}
}
