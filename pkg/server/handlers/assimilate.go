package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/factgraph"
	"github.com/soundprediction/factgraph/pkg/server/dto"
)

// AssimilateHandler handles content ingestion requests.
type AssimilateHandler struct {
	client *factgraph.Client
}

// NewAssimilateHandler creates a new assimilate handler.
func NewAssimilateHandler(client *factgraph.Client) *AssimilateHandler {
	return &AssimilateHandler{client: client}
}

// Assimilate handles POST /api/v1/assimilate.
func (h *AssimilateHandler) Assimilate(c *gin.Context) {
	var req dto.AssimilateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	domainReq := factgraph.AssimilateRequest{
		Identifier: req.Identifier.Domain(),
		Content:    req.Content,
		History:    req.History,
		Metadata:   req.Metadata,
	}
	if req.Timestamp != nil {
		domainReq.Timestamp = *req.Timestamp
	} else {
		domainReq.Timestamp = time.Now().UTC()
	}

	result, err := h.client.Assimilate(c.Request.Context(), domainReq)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.AssimilateResponse{
		EntityID:       result.EntityID,
		SourceID:       result.SourceID,
		Facts:          make([]dto.FactResult, 0, len(result.Facts)),
		VectorFailures: result.VectorFailures,
	}
	for _, attachment := range result.Facts {
		resp.Facts = append(resp.Facts, dto.FactResultFromAttachment(attachment))
	}

	c.JSON(http.StatusOK, resp)
}
