package userapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Route is one entry of an explicit route table.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Routes returns the contract's route table bound to s.
func Routes(s UserServer) []Route {
	h := &handler{server: s}
	return []Route{
		{Method: http.MethodGet, Path: BasePath + "/:" + UIDParam, Handler: h.getUserInfo},
	}
}

// Register mounts the route table on r.
func Register(r gin.IRoutes, s UserServer) {
	for _, rt := range Routes(s) {
		r.Handle(rt.Method, rt.Path, rt.Handler)
	}
}

type handler struct {
	server UserServer
}

// getUserInfo handles GET /user/{uid}.
//
// @Summary     Fetch user info by id
// @Description Returns a plain-text description of the user identified by uid.
// @Tags        user
// @Produce     plain
// @Param       uid path string true "user identifier"
// @Success     200 {string} string "user info"
// @Failure     400 {object} map[string]string
// @Failure     404 {object} map[string]string
// @Failure     500 {object} map[string]string
// @Router      /user/{uid} [get]
func (h *handler) getUserInfo(c *gin.Context) {
	uid := c.Param(UIDParam)

	info, err := h.server.GetUserInfo(c.Request.Context(), uid)
	if err != nil {
		c.JSON(StatusFor(err), gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.String(http.StatusOK, info)
}

// StatusFor maps a contract error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidUID):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
