package factgraph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/factgraph/pkg/types"
)

// AssimilateRequest carries one piece of raw content about one identified
// subject.
type AssimilateRequest struct {
	// Identifier names the subject. An unknown identifier creates a new
	// entity; a known one extends the existing record.
	Identifier types.Identifier
	// Content is the raw text facts are extracted from.
	Content string
	// Timestamp records when the content was observed. Zero means now.
	Timestamp time.Time
	// History carries earlier content about the same subject, oldest first.
	// Passed to the extractor for context only; never stored.
	History []string
	// Metadata is attached to the entity when it is newly created.
	Metadata map[string]string
}

// AssimilateResult reports what one ingestion call did.
type AssimilateResult struct {
	EntityID string                 `json:"entity_id"`
	SourceID string                 `json:"source_id"`
	Facts    []types.FactAttachment `json:"facts"`
	// VectorFailures counts facts that landed in the graph but could not be
	// indexed. Non-zero only when the client degrades on vector errors.
	VectorFailures int `json:"vector_failures"`
}

// Assimilate ingests content about the identified subject: it resolves or
// creates the entity, extracts facts from the content, merges each fact into
// the graph, and indexes each attachment semantically. The graph write is
// authoritative; a vector indexing failure never unwinds it.
func (c *Client) Assimilate(ctx context.Context, req AssimilateRequest) (*AssimilateResult, error) {
	if err := req.Identifier.Validate(); err != nil {
		return nil, types.NewValidationError("identifier", err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, types.NewValidationError("content", types.ErrEmptyContent)
	}
	if c.extractor == nil {
		return nil, types.NewValidationError("extractor", fmt.Errorf("no fact extractor configured"))
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	candidate := types.Entity{
		ID:        uuid.NewString(),
		CreatedAt: timestamp,
		Metadata:  req.Metadata,
	}
	rel := types.HasIdentifier{
		EntityID:  candidate.ID,
		IsPrimary: true,
		CreatedAt: timestamp,
	}

	// Identifier-keyed merge: a known identifier returns its existing owner
	// and the candidate entity is discarded.
	entity, _, _, err := c.store.CreateEntity(ctx, candidate, req.Identifier, rel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity: %w", err)
	}

	extracted, err := c.extractor.ExtractFacts(ctx, req.Content, req.Identifier, req.History)
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}

	source := types.Source{
		ID:        uuid.NewString(),
		Content:   req.Content,
		Timestamp: timestamp,
	}

	result := &AssimilateResult{
		EntityID: entity.ID,
		SourceID: source.ID,
		Facts:    make([]types.FactAttachment, 0, len(extracted)),
	}

	for _, ef := range extracted {
		attachment, err := c.store.AddFactToEntity(ctx, entity.ID, ef.Fact(), source, ef.Verb, ef.Confidence)
		if err != nil {
			return nil, fmt.Errorf("failed to attach fact %q: %w", ef.Fact().ID(), err)
		}
		result.Facts = append(result.Facts, *attachment)

		if c.index == nil {
			continue
		}
		if _, err := c.index.AddSemantic(ctx, c.config.TenantID, entity.ID, attachment.Fact, attachment.HasFact.Verb); err != nil {
			if !c.config.DegradeOnVectorError {
				return nil, fmt.Errorf("failed to index fact %q: %w", attachment.Fact.ID(), err)
			}
			result.VectorFailures++
			c.logger.Warn("vector indexing failed, graph record kept",
				"entity_id", entity.ID,
				"fact_id", attachment.Fact.ID(),
				"verb", attachment.HasFact.Verb,
				"error", err)
		}
	}

	c.logger.Info("assimilated content",
		"entity_id", entity.ID,
		"source_id", source.ID,
		"facts", len(result.Facts),
		"vector_failures", result.VectorFailures)

	return result, nil
}
