package capture

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/subtrack/nativebridge/internal/errors"
	"github.com/subtrack/nativebridge/internal/logger"
)

// Handler is the host ingress: the platform side reports notifications and
// listener lifecycle changes through it.
type Handler struct {
	logger  *logger.Logger
	service *Service
}

func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{logger: logger.WithComponent("capture-http"), service: service}
}

// RegisterRoutes mounts the host ingress endpoints on group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/host/notifications", h.NotificationPosted)
	group.DELETE("/host/notifications", h.NotificationRemoved)
	group.GET("/host/listener", h.ListenerState)
	group.POST("/host/listener/activate", h.Activate)
	group.POST("/host/listener/deactivate", h.Deactivate)
}

// ListenerStateResponse describes the capture service lifecycle.
type ListenerStateResponse struct {
	State             string `json:"state"`
	PermissionGranted bool   `json:"permissionGranted"`
}

// POST /host/notifications
func (h *Handler) NotificationPosted(c *gin.Context) {
	var n StatusNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid notification: "+err.Error(), nil)
		return
	}
	h.service.OnNotificationPosted(&n)
	c.Status(http.StatusAccepted)
}

// DELETE /host/notifications
func (h *Handler) NotificationRemoved(c *gin.Context) {
	var n StatusNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid notification: "+err.Error(), nil)
		return
	}
	h.service.OnNotificationRemoved(&n)
	c.Status(http.StatusAccepted)
}

// GET /host/listener
func (h *Handler) ListenerState(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateResponse(c))
}

// POST /host/listener/activate
func (h *Handler) Activate(c *gin.Context) {
	if err := h.service.OnCreate(); err != nil {
		if errors.Is(err, ErrContextUnavailable) {
			apierrors.AbortWithUnavailable(c, "CONTEXT_UNAVAILABLE", "background engine is not running", nil)
			return
		}
		h.logger.LogError(c.Request.Context(), err, "failed to activate capture service")
		apierrors.AbortWithInternal(c, "failed to activate capture service", nil)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(c))
}

// POST /host/listener/deactivate
func (h *Handler) Deactivate(c *gin.Context) {
	h.service.OnDestroy()
	c.JSON(http.StatusOK, h.stateResponse(c))
}

func (h *Handler) stateResponse(c *gin.Context) ListenerStateResponse {
	return ListenerStateResponse{
		State:             h.service.State().String(),
		PermissionGranted: h.service.CheckPermission(c.Request.Context()),
	}
}
