package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/factgraph"
	"github.com/soundprediction/factgraph/pkg/server/dto"
)

// EntityHandler handles entity and fact deletion requests.
type EntityHandler struct {
	client *factgraph.Client
}

// NewEntityHandler creates a new entity handler.
func NewEntityHandler(client *factgraph.Client) *EntityHandler {
	return &EntityHandler{client: client}
}

// DeleteEntity handles DELETE /api/v1/entity/:id.
func (h *EntityHandler) DeleteEntity(c *gin.Context) {
	entityID := c.Param("id")

	deleted, err := h.client.DeleteEntity(c.Request.Context(), entityID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: "entity not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "entity_id": entityID})
}

// RemoveFact handles DELETE /api/v1/entity/:id/fact/:fact_id.
func (h *EntityHandler) RemoveFact(c *gin.Context) {
	entityID := c.Param("id")
	factID := c.Param("fact_id")

	removed, err := h.client.RemoveFact(c.Request.Context(), entityID, factID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: "fact attachment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true, "entity_id": entityID, "fact_id": factID})
}
