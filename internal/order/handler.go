// Package order holds order-server's HTTP surface. Orders themselves are
// out of scope; the service exists to consume the user lookup contract
// through a discovered client.
package order

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/userapi"
)

// Handler answers order-server requests using a UserServer, normally a
// *userapi.Client.
type Handler struct {
	users  userapi.UserServer
	logger *slog.Logger
}

// NewHandler returns a Handler. logger may be nil.
func NewHandler(users userapi.UserServer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{users: users, logger: logger}
}

// Register mounts GET /order/user/:uid on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/order/user/:"+userapi.UIDParam, h.UserInfo)
}

// UserInfo handles GET /order/user/{uid} by asking user-server for the
// user and relaying its answer.
func (h *Handler) UserInfo(c *gin.Context) {
	uid := c.Param(userapi.UIDParam)

	info, err := h.users.GetUserInfo(c.Request.Context(), uid)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.WarnContext(c.Request.Context(), "user lookup failed", "uid", uid, "err", err)
		}
		c.JSON(code, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.String(http.StatusOK, info)
}

func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return userapi.StatusFor(err)
}
