// Package handlers implements the HTTP request handlers of the API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/factgraph/pkg/server/dto"
	"github.com/soundprediction/factgraph/pkg/types"
)

// writeError maps a domain error onto an HTTP status and writes the response.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrEntityNotFound), errors.Is(err, types.ErrFactNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, types.ErrValidation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}

// writeBadRequest writes a 400 with a message.
func writeBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: message})
}
