package dto

import (
	"strings"
	"time"

	"github.com/soundprediction/factgraph/pkg/types"
)

// AssimilateRequest is the payload for POST /api/v1/assimilate.
type AssimilateRequest struct {
	Identifier Identifier        `json:"identifier" binding:"required"`
	Content    string            `json:"content" binding:"required"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	History    []string          `json:"history,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate performs validation on AssimilateRequest.
func (r *AssimilateRequest) Validate() error {
	if err := r.Identifier.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if len(r.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// AssimilateResponse reports what one ingestion call did.
type AssimilateResponse struct {
	EntityID       string       `json:"entity_id"`
	SourceID       string       `json:"source_id"`
	Facts          []FactResult `json:"facts"`
	VectorFailures int          `json:"vector_failures"`
}

// FactResult is the wire form of one attached fact.
type FactResult struct {
	FactID     string  `json:"fact_id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Verb       string  `json:"verb"`
	Confidence float64 `json:"confidence"`
}

// FactResultFromAttachment converts a domain attachment to its wire form.
func FactResultFromAttachment(a types.FactAttachment) FactResult {
	return FactResult{
		FactID:     a.Fact.ID(),
		Name:       a.Fact.Name,
		Type:       a.Fact.Type,
		Verb:       a.HasFact.Verb,
		Confidence: a.HasFact.Confidence,
	}
}

// FactResultFromView converts a retrieved fact to its wire form.
func FactResultFromView(f types.FactWithSource) FactResult {
	return FactResult{
		FactID:     f.Fact.ID(),
		Name:       f.Fact.Name,
		Type:       f.Fact.Type,
		Verb:       f.Relationship.Verb,
		Confidence: f.Relationship.Confidence,
	}
}
