// Package handlers provides the launcher's HTTP surface: the session
// lifecycle endpoints under /k8s, the event channel upgrade, metrics and
// health.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yousefmoazzam/hebi-launcher/internal/auth"
	"github.com/yousefmoazzam/hebi-launcher/internal/errors"
	"github.com/yousefmoazzam/hebi-launcher/internal/hub"
	"github.com/yousefmoazzam/hebi-launcher/internal/lifecycle"
	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// Handler serves the lifecycle endpoints.
type Handler struct {
	controller *lifecycle.Controller
	tokens     *auth.TokenManager
	channel    *hub.Hub
}

// NewHandler creates the launcher's HTTP handler.
func NewHandler(controller *lifecycle.Controller, tokens *auth.TokenManager, channel *hub.Hub) *Handler {
	return &Handler{controller: controller, tokens: tokens, channel: channel}
}

// RegisterRoutes attaches all launcher endpoints to a router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	k8sGroup := router.Group("/k8s")
	{
		k8sGroup.GET("/session_info", h.SessionInfo)
		k8sGroup.GET("/start_hebi", h.StartHebi)
		k8sGroup.GET("/stop_hebi", h.StopHebi)
	}

	router.GET("/ws", gin.WrapH(h.channel))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// resolveFedID applies the identity precedence and converts a failure into
// the standard auth error response.
func (h *Handler) resolveFedID(c *gin.Context) (string, bool) {
	fedid, err := auth.ResolveFedID(c, h.tokens)
	if err != nil {
		appErr := errors.Wrap(errors.ErrCodeTokenInvalid, "Could not resolve requestor identity", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return "", false
	}
	return fedid, true
}

// SessionInfo reports whether the requestor has a session running.
func (h *Handler) SessionInfo(c *gin.Context) {
	fedid, ok := h.resolveFedID(c)
	if !ok {
		return
	}

	running, err := h.controller.IsSessionRunning(c.Request.Context(), fedid)
	if err != nil {
		logger.Lifecycle().Error().Err(err).Str("fedid", fedid).Msg("Session info query failed")
		appErr := errors.KubernetesError(err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":                     fedid,
		"is_session_currently_running": running,
	})
}

// StartHebi launches a session for the requestor (or for the fedid named in
// the query, for administrative callers).
func (h *Handler) StartHebi(c *gin.Context) {
	fedid, ok := h.resolveFedID(c)
	if !ok {
		return
	}

	// An explicit uid parameter overrides the directory record.
	var uid *int
	if raw := c.Query("uid"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			appErr := errors.BadRequest("uid must be an integer")
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		uid = &parsed
	}

	result := h.controller.Start(c.Request.Context(), fedid, uid)
	c.JSON(http.StatusOK, result)
}

// StopHebi destroys the requestor's session resources.
func (h *Handler) StopHebi(c *gin.Context) {
	fedid, ok := h.resolveFedID(c)
	if !ok {
		return
	}

	result := h.controller.Stop(c.Request.Context(), fedid)
	c.JSON(http.StatusOK, result)
}
