package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/connection-hub/backend/internal/model"
)

// HubResponse represents a hub instance in API responses.
type HubResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Connections int      `json:"connections"`
	Hibernated  bool     `json:"hibernated"`
	SessionIDs  []string `json:"sessionIds,omitempty"`
	CreatedAt   string   `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// toHubResponse builds the API view of a hub instance. Instances without
// runtime state simply have no connections yet.
func (h *HubHandler) toHubResponse(inst *model.HubInstance, detailed bool) *HubResponse {
	resp := &HubResponse{
		ID:        inst.ID,
		Name:      inst.Name,
		CreatedAt: inst.CreatedAt.Format(time.RFC3339),
	}

	rtInst, ok := h.runtime.Lookup(inst.ID)
	if !ok {
		resp.Hibernated = true
		return resp
	}

	resp.Connections = rtInst.ConnectionCount()
	resp.Hibernated = rtInst.Hibernated()
	if detailed {
		resp.SessionIDs = rtInst.SessionIDs()
	}
	return resp
}

// List handles GET /api/hubs - lists all known hub instances.
func (h *HubHandler) List(c *gin.Context) {
	instances, err := h.instances.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list hubs: "+err.Error())
		return
	}

	response := make([]*HubResponse, len(instances))
	for i, inst := range instances {
		response[i] = h.toHubResponse(inst, false)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/hubs/:name - returns one hub instance with its
// session ids.
func (h *HubHandler) Get(c *gin.Context) {
	inst, err := h.instances.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, model.ErrHubNotFound) {
			sendError(c, http.StatusNotFound, "HUB_NOT_FOUND", "Hub "+c.Param("name")+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get hub: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, h.toHubResponse(inst, true))
}

// Hibernate handles POST /api/hubs/:name/hibernate - evicts the hub's
// in-memory state immediately while keeping its connections open.
func (h *HubHandler) Hibernate(c *gin.Context) {
	inst, err := h.instances.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, model.ErrHubNotFound) {
			sendError(c, http.StatusNotFound, "HUB_NOT_FOUND", "Hub "+c.Param("name")+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get hub: "+err.Error())
		return
	}

	if rtInst, ok := h.runtime.Lookup(inst.ID); ok {
		rtInst.Hibernate()
	}

	c.JSON(http.StatusOK, h.toHubResponse(inst, false))
}
