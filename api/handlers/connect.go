// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/connection-hub/backend/internal/logger"
	"github.com/connection-hub/backend/internal/model"
	"github.com/connection-hub/backend/internal/repository"
	"github.com/connection-hub/backend/internal/runtime"
)

// HubHandler terminates connect requests and the hub admin API. It validates
// the upgrade, resolves the stable hub name to an instance id, and hands the
// raw request to the runtime; everything past that point belongs to the hub
// core.
type HubHandler struct {
	instances *repository.InstanceRepository
	runtime   *runtime.Runtime
}

// NewHubHandler creates a new HubHandler.
func NewHubHandler(instances *repository.InstanceRepository, rt *runtime.Runtime) *HubHandler {
	return &HubHandler{
		instances: instances,
		runtime:   rt,
	}
}

// Connect handles /api/hubs/:name/connect - upgrades the request and hands
// the connection to the named hub instance.
func (h *HubHandler) Connect(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusUpgradeRequired, "WebSocket upgrade required. Set the Upgrade: websocket header.")
		return
	}
	if c.Request.Method != http.MethodGet {
		c.String(http.StatusBadRequest, "WebSocket connect endpoint only accepts GET requests.")
		return
	}

	name := c.Param("name")
	inst, err := h.instances.GetOrCreateByName(c.Request.Context(), name)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to resolve hub: "+err.Error())
		return
	}

	if err := h.runtime.Connect(inst.ID, c.Writer, c.Request); err != nil {
		// The controller re-checks what the adapter already validated.
		switch {
		case errors.Is(err, model.ErrProtocolMismatch):
			c.String(http.StatusUpgradeRequired, err.Error())
		case errors.Is(err, model.ErrMethodNotAllowed):
			c.String(http.StatusBadRequest, err.Error())
		default:
			// The upgrader already wrote its own error response.
			logger.Warn("connect failed", "hub", name, "error", err)
		}
	}
}

// RegisterRoutes registers the hub routes on a Gin router group. The connect
// route accepts any method so wrong-method requests reach the adapter's own
// validation instead of the router's 404.
func (h *HubHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Any("/hubs/:name/connect", h.Connect)
	rg.GET("/hubs", h.List)
	rg.GET("/hubs/:name", h.Get)
	rg.POST("/hubs/:name/hibernate", h.Hibernate)
}
