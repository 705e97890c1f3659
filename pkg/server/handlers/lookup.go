package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/factgraph"
	"github.com/soundprediction/factgraph/pkg/server/dto"
)

// LookupHandler handles fact retrieval requests.
type LookupHandler struct {
	client *factgraph.Client
}

// NewLookupHandler creates a new lookup handler.
func NewLookupHandler(client *factgraph.Client) *LookupHandler {
	return &LookupHandler{client: client}
}

// Lookup handles POST /api/v1/lookup.
func (h *LookupHandler) Lookup(c *gin.Context) {
	var req dto.LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	result, err := h.client.Lookup(c.Request.Context(), factgraph.LookupRequest{
		Identifier: req.Identifier.Domain(),
		Query:      req.Query,
		TopK:       req.TopK,
		MinScore:   req.MinScore,
		Summarize:  req.Summarize,
		Language:   req.Language,
		Debug:      req.Debug,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.LookupResponse{
		EntityID: result.EntityID,
		Facts:    make([]dto.FactResult, 0, len(result.Facts)),
		Answer:   result.Answer,
		Debug: dto.LookupDebug{
			Query:          result.Debug.Query,
			TopK:           result.Debug.TopK,
			MinScore:       result.Debug.MinScore,
			GraphFacts:     result.Debug.GraphFacts,
			VectorHits:     result.Debug.VectorHits,
			VerifiedHits:   result.Debug.VerifiedHits,
			DiscardedHits:  result.Debug.DiscardedHits,
			VectorDegraded: result.Debug.VectorDegraded,
			GraphDuration:  result.Debug.GraphDuration.String(),
			VectorDuration: result.Debug.VectorDuration.String(),
			AnswerDuration: result.Debug.AnswerDuration.String(),
		},
	}
	for _, hit := range result.Debug.Hits {
		resp.Debug.Hits = append(resp.Debug.Hits, dto.HitDebug{
			FactID:   hit.FactID,
			Verb:     hit.Verb,
			Score:    hit.Score,
			Verified: hit.Verified,
		})
	}
	for _, fact := range result.Facts {
		resp.Facts = append(resp.Facts, dto.FactResultFromView(fact))
	}

	c.JSON(http.StatusOK, resp)
}
