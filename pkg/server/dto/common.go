// Package dto defines the request and response payloads of the HTTP API.
package dto

import (
	"errors"
	"strings"

	"github.com/soundprediction/factgraph/pkg/types"
)

// Validation errors
var (
	ErrEmptyIdentifierValue = errors.New("identifier.value cannot be empty")
	ErrInvalidIdentifier    = errors.New("identifier.type must be one of email, phone, username, uuid, social_id")
	ErrEmptyContent         = errors.New("content cannot be empty")
	ErrContentTooLong       = errors.New("content exceeds maximum length (1MB)")
	ErrValueTooLong         = errors.New("identifier.value exceeds maximum length (1024)")
)

// Maximum field lengths to prevent abuse
const (
	MaxIdentifierLength = 1024
	MaxContentLength    = 1024 * 1024 // 1MB
)

// Identifier is the wire form of an external entity key.
type Identifier struct {
	Value string `json:"value" binding:"required"`
	Type  string `json:"type" binding:"required"`
}

// Validate performs validation on Identifier.
func (i *Identifier) Validate() error {
	if strings.TrimSpace(i.Value) == "" {
		return ErrEmptyIdentifierValue
	}
	if len(i.Value) > MaxIdentifierLength {
		return ErrValueTooLong
	}
	if !types.IdentifierType(i.Type).Valid() {
		return ErrInvalidIdentifier
	}
	return nil
}

// Domain converts the wire identifier to its domain form.
func (i *Identifier) Domain() types.Identifier {
	return types.Identifier{
		Value: i.Value,
		Type:  types.IdentifierType(i.Type),
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
